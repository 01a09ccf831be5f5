package controllers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bnnchamploo/bandle-garden/config"
	"github.com/bnnchamploo/bandle-garden/middleware"
	"github.com/bnnchamploo/bandle-garden/services"
	"github.com/bnnchamploo/bandle-garden/utils"
)

func getUserID(ctx *gin.Context) (uint, bool) {
	value, exists := ctx.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, true
	case int:
		return uint(v), true
	case int64:
		return uint(v), true
	case float64:
		return uint(v), true
	default:
		return 0, false
	}
}

func isAdmin(ctx *gin.Context) bool {
	unameVal, exists := ctx.Get(middleware.ContextUsernameKey)
	if !exists {
		return false
	}
	uname, _ := unameVal.(string)
	if uname == "" {
		return false
	}
	cfg := config.Get()
	for _, u := range cfg.AdminUsernames {
		if strings.EqualFold(strings.TrimSpace(u), uname) {
			return true
		}
	}
	return false
}

func parsePagination(pageStr, sizeStr string) (int, int) {
	page := 1
	pageSize := 20
	if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
		page = p
	}
	if s, err := strconv.Atoi(sizeStr); err == nil && s > 0 && s <= 100 {
		pageSize = s
	}
	return page, pageSize
}

func parseID(raw string) (uint, bool) {
	n, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}

// respondServiceError maps service error kinds onto the JSON envelope.
func respondServiceError(ctx *gin.Context, err error, fallbackCode int, fallbackMsg string) {
	switch {
	case errors.Is(err, services.ErrValidation):
		utils.Error(ctx, http.StatusBadRequest, 40040, err.Error())
	case errors.Is(err, services.ErrNotFound):
		utils.Error(ctx, http.StatusNotFound, 40440, err.Error())
	case errors.Is(err, services.ErrConflict):
		utils.Error(ctx, http.StatusConflict, 40940, err.Error())
	default:
		utils.Sugar.Errorf("%s: %v", fallbackMsg, err)
		utils.Error(ctx, http.StatusInternalServerError, fallbackCode, fallbackMsg)
	}
}

// Patch payloads distinguish absent fields from explicit nulls:
// absent means no change, null means clear. json.RawMessage keeps the
// distinction through binding.

func rawProvided(r json.RawMessage) bool {
	return len(r) > 0
}

func rawIsNull(r json.RawMessage) bool {
	return string(bytes.TrimSpace(r)) == "null"
}

// rawString decodes a provided field into a nullable string.
func rawString(r json.RawMessage) (*string, error) {
	if rawIsNull(r) {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(r, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// rawUint decodes a provided field into a nullable uint.
func rawUint(r json.RawMessage) (*uint, error) {
	if rawIsNull(r) {
		return nil, nil
	}
	var n uint
	if err := json.Unmarshal(r, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// rawInt decodes a provided field into a nullable int. An empty string
// counts as null; a numeric string is accepted, matching lenient
// editor payloads.
func rawInt(r json.RawMessage) (*int, error) {
	if rawIsNull(r) {
		return nil, nil
	}
	var n int
	if err := json.Unmarshal(r, &n); err == nil {
		return &n, nil
	}
	var s string
	if err := json.Unmarshal(r, &s); err != nil {
		return nil, err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, err
	}
	return &n, nil
}
