package handler

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/ru"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	ru_translations "github.com/go-playground/validator/v10/translations/ru"
)

// requestValidator validates request bodies and renders field errors in the
// caller's language.
type requestValidator struct {
	v   *validator.Validate
	uni *ut.UniversalTranslator
}

func newRequestValidator() (*requestValidator, error) {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON names, not Go field names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	enLocale := en.New()
	uni := ut.New(enLocale, enLocale, ru.New())
	enTrans, _ := uni.GetTranslator("en")
	if err := en_translations.RegisterDefaultTranslations(v, enTrans); err != nil {
		return nil, err
	}
	ruTrans, _ := uni.GetTranslator("ru")
	if err := ru_translations.RegisterDefaultTranslations(v, ruTrans); err != nil {
		return nil, err
	}
	return &requestValidator{v: v, uni: uni}, nil
}

// Struct validates s. Field errors come back as a map of JSON field name to
// message in lang; nil means s is valid.
func (rv *requestValidator) Struct(s any, lang string) (map[string]string, error) {
	err := rv.v.Struct(s)
	if err == nil {
		return nil, nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return nil, err
	}
	trans, _ := rv.uni.GetTranslator(lang)
	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		fields[fe.Field()] = fe.Translate(trans)
	}
	return fields, nil
}
