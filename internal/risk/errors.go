package risk

import (
	"errors"
	"fmt"
)

// ErrInvalidInput возвращается, когда входные данные нарушают предусловия расчета
// (деление на ноль, неположительная цена или размер, неизвестное направление).
var ErrInvalidInput = errors.New("invalid input")

// InputError описывает конкретное нарушенное поле.
// errors.Is(err, ErrInvalidInput) == true для любого InputError.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is позволяет сопоставлять InputError с ErrInvalidInput
func (e *InputError) Is(target error) bool {
	return target == ErrInvalidInput
}

func invalid(field, reason string) error {
	return &InputError{Field: field, Reason: reason}
}
