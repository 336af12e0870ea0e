package generate

import "strings"

// OptionDelimiter разделяет варианты поста в ответе модели.
const OptionDelimiter = "###"

// buildSystemPrompt собирает системную инструкцию: контракт на 2-3 варианта,
// тон и блок с примерами прошлых постов автора (или общий стиль, если
// примеров нет). Каждый пример усечён до maxExampleChars символов.
func buildSystemPrompt(tone string, examples []string, maxExampleChars int) string {
	var sb strings.Builder
	sb.WriteString("You are an expert social media manager.\n")
	sb.WriteString("Generate exactly 2-3 distinct, engaging options for a post based on the user's prompt and attached media.\n\n")

	if tone != "" {
		sb.WriteString("TONE: ")
		sb.WriteString(tone)
		sb.WriteString("\n")
	}

	if len(examples) > 0 {
		sb.WriteString("\n### AUTHOR'S VOICE & STYLE INSTRUCTIONS ###\n")
		sb.WriteString("Analyze the following examples of the user's previous successful posts.\n")
		sb.WriteString("Mimic their sentence structure, emoji usage, formatting style and vocabulary exactly.\n")
		sb.WriteString("Do NOT mention that you are mimicking them. Just write in their persona.\n\n")
		sb.WriteString("--- START EXAMPLES ---\n")
		for _, example := range examples {
			sb.WriteString("Example: ")
			sb.WriteString(clipRunes(example, maxExampleChars))
			sb.WriteString("\n\n")
		}
		sb.WriteString("--- END EXAMPLES ---\n")
	} else {
		sb.WriteString("\nStyle: Use a professional yet engaging style suitable for LinkedIn.\n")
	}

	sb.WriteString("\nRULES:\n")
	sb.WriteString("- Do NOT use conversational filler (e.g. \"Here is your post\").\n")
	sb.WriteString("- Use short paragraphs and emojis.\n")
	sb.WriteString("- Separate each option with exactly three hashes: ###\n")
	sb.WriteString("- Do NOT include introductory or concluding text.\n")
	sb.WriteString("- Start immediately with the first option.\n")
	sb.WriteString("- If an image is provided, describe it briefly in the context of the post.\n")
	sb.WriteString("- Use appropriate hashtags if relevant to the prompt.\n")

	return sb.String()
}

// splitOptions разбирает сырой ответ модели на варианты поста:
// разделение по OptionDelimiter, обрезка пробелов, пустые сегменты
// отбрасываются.
func splitOptions(raw string) []string {
	parts := strings.Split(raw, OptionDelimiter)
	options := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		options = append(options, trimmed)
	}
	return options
}

func clipRunes(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
