// File: internal/protocol/instructions.go
package protocol

import (
	"fmt"

	"github.com/xkilldash9x/loom/api/schemas"
)

// EncodeInstruction produces the output-contract text injected into a node's
// role prompt: the delimiters, field names and required shape the model must
// follow for that node. Decode accepts exactly what these instructions demand.
func EncodeInstruction(kind schemas.NodeKind) string {
	switch kind {
	case schemas.NodeRouter:
		return fmt.Sprintf(`When you decide to hand the request to another phase, respond with ONLY this raw JSON object, with no delimiters and no surrounding prose:
{"nextNode": "<one of: assetCollector | examiner | frontendCoder | backendCoder | terminalExecutor | featureSuggester>", "userMessage": "<the user's request, forwarded verbatim or clarified>"}
When you instead reply to the user directly, respond with exactly one block:
%s
{"type": "explanation", "role": "ai", "data": "<your reply>"}
%s`, StartDelimiter, EndDelimiter)

	case schemas.NodeAssetCollector:
		return fmt.Sprintf(`Respond with exactly one block in this shape and nothing outside it:
%s
{"type": "web", "role": "ai", "action": "<what you did, e.g. 'captured screenshot of example.com' or 'took inspiration for clicker game'>", "url": "<the asset url>"}
%s`, StartDelimiter, EndDelimiter)

	case schemas.NodeExaminer:
		return fmt.Sprintf(`Respond with exactly two blocks back to back, first the asset acknowledgment, then the plan:
%s
{"type": "web", "role": "ai", "action": "<how the asset will be used>", "url": "<the asset url>"}
%s
%s
{"type": "examiner", "role": "ai", "data": "<the full build plan>", "url": "<the asset url>", "planId": "<6-character alphanumeric id>"}
%s`, StartDelimiter, EndDelimiter, StartDelimiter, EndDelimiter)

	case schemas.NodeFrontendCoder, schemas.NodeBackendCoder:
		return fmt.Sprintf(`Respond with exactly one block containing one COMPLETE file and nothing outside it:
%s
{"type": "coding", "role": "ai", "file": "<path of the file in this response>", "code": "<the complete file content, no placeholders, no truncation>", "nextFile": "<path you will produce next, or "" when finished>", "isachieved": <true only when every file the plan requires exists>}
%s`, StartDelimiter, EndDelimiter)

	case schemas.NodeTerminalExecutor:
		return fmt.Sprintf(`Respond with exactly one block containing exactly ONE shell command:
%s
{"type": "terminal", "role": "ai", "command": "<the single command to run>", "isachieved": <true only when no further commands are needed>}
%s`, StartDelimiter, EndDelimiter)

	case schemas.NodeFeatureSuggester:
		return fmt.Sprintf(`Respond with exactly one block:
%s
{"type": "feat_sugges", "role": "ai", "data": "<a short, prioritized list of enhancement ideas>"}
%s`, StartDelimiter, EndDelimiter)

	default:
		return ""
	}
}
