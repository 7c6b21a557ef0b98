package server

import (
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/leebenson/conform"
	apiError "github.com/techagentng/citizenchat/errors"
)

var (
	translatorOnce sync.Once
	translator     ut.Translator
)

// trans returns the english translator registered on gin's validator.
func trans() ut.Translator {
	translatorOnce.Do(func() {
		english := en.New()
		translator, _ = ut.New(english, english).GetTranslator("en")
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			v.RegisterTagNameFunc(jsonFieldName)
			if err := en_translations.RegisterDefaultTranslations(v, translator); err != nil {
				panic(err)
			}
		}
	})
	return translator
}

func jsonFieldName(field reflect.StructField) string {
	name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
	if name == "-" || name == "" {
		return field.Name
	}
	return name
}

// decode binds a JSON body into v, trims its strings and turns binding
// failures into a readable validation error.
func decode(c *gin.Context, v interface{}) *apiError.Error {
	trans()
	if err := c.ShouldBindJSON(v); err != nil {
		return bindError(err)
	}
	if err := conform.Strings(v); err != nil {
		return apiError.Validation("invalid request body")
	}
	return nil
}

// decodeOptional is decode for endpoints whose body may be absent.
func decodeOptional(c *gin.Context, v interface{}) *apiError.Error {
	if c.Request.Body == nil || c.Request.Body == http.NoBody || c.Request.ContentLength == 0 {
		return nil
	}
	return decode(c, v)
}

func bindError(err error) *apiError.Error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fe.Translate(trans()))
		}
		return apiError.Validation("%s", strings.Join(msgs, "; "))
	}
	if errors.Is(err, io.EOF) {
		return apiError.Validation("request body is required")
	}
	return apiError.Validation("malformed JSON body")
}
