package prompt

import (
	"fmt"

	"github.com/dataagent/dataagent/internal/llm"
)

const (
	TableDefinitionsCapRef = "TABLE_DEFINITIONS"

	sqlInstructions    = "You're an elite SQL developer. You generate the most concise and performant SQL queries."
	runSQLInstruction  = "Use the run_sql function to run the SQL you've just generated."
	confidenceTooLow   = "Gate Team Rejected - Confidence too low: %d"
	invalidGateMessage = "Gate Team Rejected - Invalid response"

	scrumMasterInstructions = "Scrum Master. You assess whether a block of text is a SQL Natural Language Query (NLQ) against the analytics database. " +
		"Please rank from 1 to 5 how confident you are that it is, where 1 means not a data question at all and 5 means a clear data question. " +
		"Reply with the number only."

	engineerInstructions = "A Data Engineer. Generate the initial SQL based on the requirements provided. " +
		"Only reply with the SQL, it will be executed by the Data Analyst."

	analystInstructions = "Sr Data Analyst. You run the SQL query using the run_sql function, send the raw response to the data viz team. " +
		"You use the run_sql function exclusively."

	informationalInstructions = "You're a helpful analytics assistant. The user's message is not a question the analytics database can answer. " +
		"Reply briefly and suggest two or three concrete data questions the user could ask instead, based on the table definitions provided."

	innovatorInstructions = "You're a data innovator. You analyze SQL databases table structure and generate 3 novel insights for your team to reflect on and query. " +
		"Format your insights in JSON format."
)

func withTableDefinitions(prompt, tableDefinitions string) string {
	return llm.AddCapRef(
		prompt,
		fmt.Sprintf("Use these %s to satisfy the database query.", TableDefinitionsCapRef),
		TableDefinitionsCapRef,
		tableDefinitions,
	)
}

func innovationPrompt(rawPrompt, tableDefinitions string) string {
	prompt := fmt.Sprintf("Analyze SQL databases table structure and generate 3 novel insights for your team to reflect on and query based on the original prompt: %s. "+
		`Only respond with a json list containing objects of the following structure: {"insight": "description_of_insight", "actionable_business_value": "actionable_value", "sql": "new_query"}. `+
		"Use the write_innovation_file function to save the json list.", rawPrompt)
	if tableDefinitions == "" {
		return prompt
	}
	return llm.AddCapRef(prompt, fmt.Sprintf("Base the insights on these %s.", TableDefinitionsCapRef), TableDefinitionsCapRef, tableDefinitions)
}
