// Package prompt renders a TicketDetail into the generation prompt.
// Build is deterministic: identical input yields byte-identical output.
package prompt

import (
	"fmt"
	"strings"

	"github.com/testcraft-io/testcraft/pkg/protocol"
)

// System is the fixed system message sent with every generation request.
const System = "You are a QA expert specialized in creating comprehensive test cases from Jira tickets."

const template = `You are an expert QA engineer. Based on the following Jira ticket details, generate a comprehensive set of test cases.

TICKET KEY: %s
SUMMARY: %s
DESCRIPTION: %s
ISSUE TYPE: %s
PRIORITY: %s
COMPONENTS: %s
ACCEPTANCE CRITERIA: %s

For each test case, provide:
1. Test case ID (TC-XX format)
2. Test objective
3. Preconditions
4. Test steps (numbered)
5. Expected results
6. Priority (High/Medium/Low)

Cover the following:
- Positive test cases (valid inputs/scenarios)
- Negative test cases (invalid inputs/error handling)
- Edge cases and boundary values
- Performance considerations (if applicable)
- Security aspects (if applicable)
- Integration points with other components

Format the test cases clearly with proper categorization using markdown.`

// Build renders the ticket into the prompt. Every field is embedded
// verbatim, no escaping; the normalizer guarantees none of them is empty.
func Build(d protocol.TicketDetail) string {
	components := protocol.NoComponents
	if len(d.Components) > 0 {
		components = strings.Join(d.Components, ", ")
	}
	return fmt.Sprintf(template,
		d.Key,
		d.Summary,
		d.Description,
		d.IssueType,
		d.Priority,
		components,
		d.AcceptanceCriteria,
	)
}
