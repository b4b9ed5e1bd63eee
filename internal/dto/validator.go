package dto

import (
	"github.com/go-playground/validator/v10"
)

// MarkActions 可用的标记动作
var MarkActions = []string{"done-today", "done-yesterday", "done-previous", "not-done"}

// RegisterValidators 向校验引擎注册自定义规则
//   - weekdays:    非空，且每个元素在 1..7
//   - mark_action: 取值属于 MarkActions
func RegisterValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("weekdays", validateWeekdays); err != nil {
		return err
	}
	return v.RegisterValidation("mark_action", validateMarkAction)
}

func validateWeekdays(fl validator.FieldLevel) bool {
	days, ok := fl.Field().Interface().([]int)
	if !ok || len(days) == 0 {
		return false
	}
	for _, d := range days {
		if d < 1 || d > 7 {
			return false
		}
	}
	return true
}

func validateMarkAction(fl validator.FieldLevel) bool {
	action := fl.Field().String()
	for _, a := range MarkActions {
		if a == action {
			return true
		}
	}
	return false
}
