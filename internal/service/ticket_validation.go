package service

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/helpdesk-labs/helpdesk-service/internal/domain"
	apperrors "github.com/helpdesk-labs/helpdesk-service/pkg/util"
)

// draftRules carries the validation tags for a ticket draft.
type draftRules struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"required"`
	Priority    string `json:"priority" validate:"required,oneof=low medium high urgent"`
	Category    string `json:"category" validate:"required"`
}

func newDraftValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// normalizeDraft trims text fields and reduces tags to a trimmed set,
// keeping first-seen order.
func normalizeDraft(draft domain.TicketDraft) domain.TicketDraft {
	draft.Title = strings.TrimSpace(draft.Title)
	draft.Description = strings.TrimSpace(draft.Description)
	draft.Category = strings.TrimSpace(draft.Category)
	draft.Priority = domain.TicketPriority(strings.ToLower(strings.TrimSpace(string(draft.Priority))))

	tags := make([]string, 0, len(draft.Tags))
	seen := make(map[string]struct{}, len(draft.Tags))
	for _, tag := range draft.Tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	draft.Tags = tags
	return draft
}

func (s *TicketService) validateDraft(draft domain.TicketDraft) error {
	err := s.validate.Struct(draftRules{
		Title:       draft.Title,
		Description: draft.Description,
		Priority:    string(draft.Priority),
		Category:    draft.Category,
	})
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.NewInternalError(err)
	}
	details := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = describeFieldError(fe)
	}
	return apperrors.NewValidationError("ticket validation failed", details)
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	default:
		return "is invalid"
	}
}
