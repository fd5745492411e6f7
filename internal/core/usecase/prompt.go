package usecase

import (
	"fmt"
	"strings"

	"github.com/kirillkom/comment-labeler/internal/core/domain"
)

const strictJSONNotice = "Devolvé SOLO JSON válido, sin texto extra."

func buildBatchMessages(task domain.Task, labels domain.LabelSet, rows []*domain.Row) []domain.Message {
	var user strings.Builder
	user.WriteString(strictJSONNotice)
	user.WriteString("\n")
	fmt.Fprintf(&user, "Formato: [{\"id\":\"<id>\",\"%s\":\"%s\"}, ...]\n", task.Field, labels.Joined("|"))
	if instruction := strings.TrimSpace(task.Instruction); instruction != "" {
		user.WriteString(instruction)
		user.WriteString("\n")
	}
	user.WriteString("\nComentarios:\n")
	for _, row := range rows {
		fmt.Fprintf(&user, "- ID: %s, Comentario: %s\n", row.ID, row.Text)
	}

	return []domain.Message{
		{Role: domain.RoleSystem, Content: task.Rubric},
		{Role: domain.RoleUser, Content: user.String()},
	}
}

func buildSinglePrompt(task domain.Task, text string, correction bool) string {
	var prompt strings.Builder
	prompt.WriteString(task.Rubric)
	prompt.WriteString("\n\nTexto a clasificar:\n\"")
	prompt.WriteString(text)
	prompt.WriteString("\"")
	if correction && strings.TrimSpace(task.Correction) != "" {
		prompt.WriteString("\n\n")
		prompt.WriteString(strings.TrimSpace(task.Correction))
	}
	return prompt.String()
}
