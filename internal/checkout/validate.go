package checkout

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

// bindingTag は入力構造体の検証タグ名。ginのShouldBindJSONと同じタグを使う。
const bindingTag = "binding"

// idPattern はパスに埋め込める識別子の形式。
var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// validate はOrchestratorが使うバリデータ。
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.SetTagName(bindingTag)
	RegisterValidations(v)
	return v
}

// RegisterValidations はこのパッケージの入力構造体が使う独自タグと、
// エラーのフィールド名をJSON名で報告する設定をバリデータに登録する。
// ginの binding.Validator.Engine() にも同じ設定を適用できる。
func RegisterValidations(v *validator.Validate) {
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	_ = v.RegisterValidation("resourceid", func(fl validator.FieldLevel) bool {
		return idPattern.MatchString(fl.Field().String())
	})
}

// Validate は binding タグに従って入力を検証し、違反をValidationErrorとして返す。
func Validate(in any) error {
	if err := validate.Struct(in); err != nil {
		return AsValidationError(err)
	}
	return nil
}

// AsValidationError はバリデータのエラーを最初の違反のValidationErrorに変換する。
// バリデータ由来でないエラーはそのまま返す。
func AsValidationError(err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return err
	}
	fe := errs[0]
	return &ValidationError{Field: fieldPath(fe), Message: messageFor(fe)}
}

// fieldPath は先頭の型名を除いたJSON名のフィールドパスを返す。
// 例: CreateOrderInput.orderItems[0].qty → orderItems[0].qty
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	if f := fe.Field(); f != "" {
		return f
	}
	return ns
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return "必須項目です"
	case "required_without":
		return "skuまたはproductが必要です"
	case "min":
		if fe.Kind() == reflect.Slice {
			return fe.Param() + "件以上必要です"
		}
		return fe.Param() + "以上である必要があります"
	case "gt":
		return fe.Param() + "より大きい値である必要があります"
	case "email":
		return "メールアドレスの形式が不正です"
	case "resourceid":
		return "IDに使用できない文字が含まれています"
	default:
		return "値が不正です"
	}
}

// requireID は識別子が空でなく、パスに埋め込める文字だけで構成されていることを確認する。
func requireID(field, v string) (string, error) {
	id := strings.TrimSpace(v)
	if err := validate.Var(id, "required,resourceid"); err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) && len(errs) > 0 {
			return "", invalid(field, messageFor(errs[0]))
		}
		return "", invalid(field, "値が不正です")
	}
	return id, nil
}
