package insight

import "github.com/anthropics/anthropic-sdk-go"

// ToolName is the single tool the model is forced to call.
const ToolName = "phishing_page_insights_extractor"

// SystemPrompt frames every analysis request.
const SystemPrompt = "You are a security assistant that tells users about phishy sites."

const toolDescription = "Extract and determine if a webpage is a potential phishing page"

// RequiredFields are the insight fields the model must return.
var RequiredFields = []string{
	"phishing_reason",
	"safe_reason",
	"likelihood",
	"likelihood_reason",
	"threat_score",
	"security_summary",
}

func schemaProperties() map[string]any {
	return map[string]any{
		"phishing_reason": map[string]any{
			"type":        "string",
			"description": "What is the determined reason for the phishing page or 'Unknown' if it is not clear",
		},
		"safe_reason": map[string]any{
			"type":        "string",
			"description": "What is the determined reason why this is not a phishing page or 'Unknown' if it is not clear",
		},
		"likelihood": map[string]any{
			"type":        "string",
			"description": "What is the likelihood this is a phishing page",
			"enum":        []string{"High", "Medium", "Low", "Unknown"},
		},
		"threat_score": map[string]any{
			"type":        "integer",
			"description": "The threat score of the page on a scale of 10 to 100, where 100 is most likely malicious and 10 is most likely safe",
			"enum":        []int{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
		"security_summary": map[string]any{
			"type":        "string",
			"description": "What is the determined security summary for the page or 'Unknown' if it is not clear",
		},
		"likelihood_reason": map[string]any{
			"type":        "string",
			"description": "The explanation for the chosen likelihood or 'Unknown' if it is not clear",
		},
		"malicious_url": map[string]any{
			"type":        "string",
			"description": "The url of the malicious page or 'Unknown' if it is not clear",
		},
	}
}

// tool returns the tool definition carrying the insight schema.
func tool() anthropic.ToolUnionParam {
	return anthropic.ToolUnionParam{
		OfTool: &anthropic.ToolParam{
			Name:        ToolName,
			Description: anthropic.String(toolDescription),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: schemaProperties(),
				Required:   RequiredFields,
			},
		},
	}
}
