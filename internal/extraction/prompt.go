package extraction

const extractionSystemPrompt = `You extract structured data from résumés. Reply with a single JSON object and nothing else.

Schema:
{
  "name": "string",
  "email": "string",
  "phone": "string",
  "skills": ["string"],
  "summary": "string, two sentences at most",
  "total_experience_years": number,
  "experience": [{"company": "string", "role": "string", "duration": "string", "description": "string"}],
  "education": [{"institution": "string", "degree": "string", "field_of_study": "string", "start_date": "string", "end_date": "string"}],
  "projects": [{"name": "string", "description": "string", "technologies": ["string"], "link": "string"}],
  "interests": ["string"]
}

Rules:
1. Use "" for unknown strings, [] for unknown lists and 0 for unknown numbers. Never invent values.
2. List each skill once, as written in the résumé.
3. total_experience_years is the sum of professional experience, in years, rounded to one decimal.`

// extractionUserPrompt frames the résumé text for the model
func extractionUserPrompt(text string) string {
	return "RÉSUMÉ TEXT:\n" + text
}
