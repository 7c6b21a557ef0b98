package services

import (
	apiError "github.com/techagentng/citizenchat/errors"
)

// pageSize resolves a requested limit: zero means the default, anything
// above max is capped.
func pageSize(limit, def, max int) (int, error) {
	switch {
	case limit < 0:
		return 0, apiError.Validation("limit must not be negative")
	case limit == 0:
		return def, nil
	case limit > max:
		return max, nil
	}
	return limit, nil
}

func checkOffset(offset int) error {
	if offset < 0 {
		return apiError.Validation("offset must not be negative")
	}
	return nil
}
