package prompt

import (
	"github.com/manifoldco/promptui"
)

// SelectOption represents an item in a selection list.
type SelectOption struct {
	Label       string
	Value       string
	Description string
}

func selectTemplates(withDetails bool) *promptui.SelectTemplates {
	t := &promptui.SelectTemplates{
		Label:    "{{ . }}",
		Active:   "> {{ .Label | cyan }}",
		Inactive: "  {{ .Label | white }}",
		Selected: "* {{ .Label | green }}",
	}
	if withDetails {
		t.Details = `
{{ "Parent:" | faint }}	{{ .Description }}`
	}
	return t
}

// Select prompts the user to pick one option and returns its Value.
// cursor is the index highlighted initially (the active layer when picking
// a layer to switch to).
func Select(label string, options []SelectOption, cursor int) (string, error) {
	if cursor < 0 || cursor >= len(options) {
		cursor = 0
	}

	p := promptui.Select{
		Label:     label,
		Items:     options,
		Templates: selectTemplates(len(options) > 0 && options[0].Description != ""),
		Size:      10,
		CursorPos: cursor,
	}

	i, _, err := p.Run()
	if err != nil {
		return "", wrapError(err)
	}
	return options[i].Value, nil
}
