package forumdata

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"git.handmade.network/hmn/forum/src/idempotency"
	"git.handmade.network/hmn/forum/src/parsing"
)

const (
	FieldComment  = "comment"
	FieldTitle    = "title"
	FieldCategory = "category"
	FieldTopic    = "topic"
	FieldComments = "comments"
	FieldImage    = "image"
)

type CommentInput struct {
	Markdown  string
	IPAddress string
}

type TopicInput struct {
	Title     string
	Markdown  string
	IPAddress string
}

type TopicUpdateInput struct {
	Title      string
	CategoryID int
}

type Limits struct {
	MaxCommentLength int
	MaxTitleLength   int
}

func validateCommentBody(errs ValidationErrors, field, markdown string, maxLength int) parsing.Rendered {
	if !utf8.ValidString(markdown) {
		errs.Add(field, "This is not valid text.")
		return parsing.Rendered{}
	}
	// Rendered from the same text that gets stored.
	markdown = idempotency.Normalize(markdown)
	if markdown == "" {
		errs.Add(field, "This field is required.")
		return parsing.Rendered{}
	}
	if n := utf8.RuneCountInString(markdown); maxLength > 0 && n > maxLength {
		errs.Add(field, fmt.Sprintf("Ensure this value has at most %d characters (it has %d).", maxLength, n))
		return parsing.Rendered{}
	}

	rendered, err := parsing.RenderComment(markdown)
	if err != nil {
		errs.Add(field, "This comment could not be rendered.")
		return parsing.Rendered{}
	}
	if strings.TrimSpace(rendered.HTML) == "" {
		errs.Add(field, "This comment has no visible content.")
	}
	return rendered
}

func validateTitle(errs ValidationErrors, title string, maxLength int) string {
	if !utf8.ValidString(title) {
		errs.Add(FieldTitle, "This is not valid text.")
		return ""
	}
	title = strings.TrimSpace(title)
	if title == "" {
		errs.Add(FieldTitle, "This field is required.")
		return ""
	}
	if n := utf8.RuneCountInString(title); maxLength > 0 && n > maxLength {
		errs.Add(FieldTitle, fmt.Sprintf("Ensure this value has at most %d characters (it has %d).", maxLength, n))
	}
	if strings.IndexFunc(title, unicode.IsControl) >= 0 {
		errs.Add(FieldTitle, "Titles cannot contain control characters.")
	}
	hasWordChar := strings.IndexFunc(title, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) >= 0
	if !hasWordChar {
		errs.Add(FieldTitle, "Titles need at least one letter or number.")
	}
	return title
}

// ValidateComment checks a comment body and renders it.
func ValidateComment(input CommentInput, limits Limits) (parsing.Rendered, ValidationErrors) {
	errs := ValidationErrors{}
	rendered := validateCommentBody(errs, FieldComment, input.Markdown, limits.MaxCommentLength)
	return rendered, errs
}

// ValidateTopic checks the title and first comment of a new topic.
func ValidateTopic(input TopicInput, limits Limits) (string, parsing.Rendered, ValidationErrors) {
	errs := ValidationErrors{}
	title := validateTitle(errs, input.Title, limits.MaxTitleLength)
	rendered := validateCommentBody(errs, FieldComment, input.Markdown, limits.MaxCommentLength)
	return title, rendered, errs
}
