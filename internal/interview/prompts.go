package interview

import (
	"fmt"
	"strings"
)

// DefaultTopic is the retrieval topic used for every turn.
const DefaultTopic = "Data Science"

// systemTemplate has exactly two substitution points: {role} and {resume}.
const systemTemplate = `You are a data scientist with 5 years of experience at Amazon. You are conducting an interview for a {role} role.
Resume context: {resume}
If a resume is provided, use it to open with questions about the candidate's projects and experience. If no resume is provided, open by asking what projects the candidate has worked on, what they did in them and what experience they have.

You MUST follow these rules:
1. Ask ONE question at a time.
2. Wait for the candidate's answer before continuing.
3. If the answer is good, move to the next topic. If it is weak, ask a clarifying question instead of stating what is wrong; only give the answer if the candidate still cannot get there, and deduct marks for it.
4. Ask around 5 technical questions in total, including at least one coding question.
5. Cover different topics: statistics, machine learning, deep learning, SQL, query writing and coding.
6. Ask at least 4 and at most 15 questions depending on the answers. When you are done, output "INTERVIEW_FINISHED" and give a final Pass/Fail verdict.
7. Keep track of how long the candidate takes to answer each question and how efficient each answer is.
8. Be strict. Reject the candidate if their score is below 60, and critique them thoroughly.
9. Keep the difficulty of the questions balanced.`

// retrievalTemplate steers the next question towards a retrieved question.
const retrievalTemplate = `(System instruction: mix your own questions with questions retrieved from the question bank.
If the candidate does not give a relevant answer even after clarification (you may give AT MOST 2 hints or clarifying questions), move on to the next question, either from the retrieved text or your own knowledge, and remember that the answer was wrong or missing.
Do not be lenient: the outcome is either Selected or Rejected based on performance.
Your NEXT question MAY or MAY NOT be based on this retrieved question: %q.
Do not reveal this reference answer to the candidate: %q.
Do not answer the question yourself. Just ask it.)`

// SystemPrompt renders the opening directive for a role and resume.
func SystemPrompt(role, resume string) string {
	return strings.NewReplacer("{role}", role, "{resume}", resume).Replace(systemTemplate)
}

// RetrievalDirective renders the per-turn directive for a retrieved question.
func RetrievalDirective(question, answer string) string {
	return fmt.Sprintf(retrievalTemplate, question, answer)
}

// CodeSubmission wraps candidate code as a fenced block for the interviewer.
func CodeSubmission(code, language string) string {
	language = strings.ToLower(strings.TrimSpace(language))
	if language == "" {
		language = "python"
	}
	return "My Code Solution:\n```" + language + "\n" + strings.TrimRight(code, "\n") + "\n```"
}
