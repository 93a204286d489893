package prompt

import (
	"errors"
	"fmt"

	"github.com/manifoldco/promptui"
)

// ConfirmDanger makes the user type word (a layer name, say) before a
// destructive action. Escaping the prompt declines without error.
func ConfirmDanger(label, word string) (bool, error) {
	p := promptui.Prompt{
		Label: fmt.Sprintf("%s (type '%s' to confirm)", label, word),
		Validate: func(in string) error {
			if in != word {
				return fmt.Errorf("type '%s' to confirm", word)
			}
			return nil
		},
	}

	got, err := p.Run()
	switch {
	case errors.Is(err, promptui.ErrAbort):
		return false, nil
	case err != nil:
		return false, wrapError(err)
	}
	return got == word, nil
}

// ConfirmDangerWithForce is ConfirmDanger unless force is set.
func ConfirmDangerWithForce(label, word string, force bool) (bool, error) {
	if force {
		return true, nil
	}
	return ConfirmDanger(label, word)
}
