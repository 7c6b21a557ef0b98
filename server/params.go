package server

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	errs "github.com/techagentng/citizenchat/errors"
)

func pathUUID(c *gin.Context, name string) (uuid.UUID, *errs.Error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, errs.Validation("%s must be a valid id", name)
	}
	return id, nil
}

// queryInt reads an optional integer query parameter; absent means zero.
func queryInt(c *gin.Context, name string) (int, *errs.Error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errs.Validation("%s must be an integer", name)
	}
	return n, nil
}

func queryBool(c *gin.Context, name string) (bool, *errs.Error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errs.Validation("%s must be true or false", name)
	}
	return b, nil
}

// queryList splits a comma separated query parameter, also accepting the
// parameter repeated.
func queryList(c *gin.Context, name string) []string {
	var out []string
	for _, v := range c.QueryArray(name) {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
