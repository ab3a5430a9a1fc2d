package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"
)

var (
	redactOnce       sync.Once
	redactionEnabled bool
	hashSalt         string
)

var getenv = os.Getenv

type keyAction int

const (
	keepValue keyAction = iota
	redactValue
	hashIDValue
)

// Substrings are matched against lower-cased keys, redaction first.
var (
	redactKeyParts = []string{
		"token", "authorization", "password", "secret", "cookie",
		"api_key", "apikey", "email", "phone", "street", "signature",
	}
	hashKeyParts = []string{
		"buyer_id", "user_id", "payment_account", "account_id", "session_id",
	}
)

func classify(key string) keyAction {
	if key == "" {
		return keepValue
	}
	for _, p := range redactKeyParts {
		if strings.Contains(key, p) {
			return redactValue
		}
	}
	for _, p := range hashKeyParts {
		if strings.Contains(key, p) {
			return hashIDValue
		}
	}
	return keepValue
}

func sanitizeKVs(kv []interface{}) []interface{} {
	if len(kv) == 0 || !redactionOn() {
		return kv
	}
	out := make([]interface{}, 0, len(kv))
	for i := 0; i < len(kv); i += 2 {
		if i == len(kv)-1 {
			out = append(out, kv[i])
			break
		}
		name := toString(kv[i])
		out = append(out, name, sanitizeValue(strings.ToLower(strings.TrimSpace(name)), kv[i+1]))
	}
	return out
}

func sanitizeValue(key string, val interface{}) interface{} {
	switch classify(key) {
	case redactValue:
		return "[REDACTED]"
	case hashIDValue:
		return hashValue(val)
	}
	switch v := val.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, inner := range v {
			out[k] = sanitizeValue(strings.ToLower(strings.TrimSpace(k)), inner)
		}
		return out
	case map[string]string:
		out := make(map[string]interface{}, len(v))
		for k, inner := range v {
			out[k] = sanitizeValue(strings.ToLower(strings.TrimSpace(k)), inner)
		}
		return out
	case string:
		if looksLikeJWT(v) {
			return "[REDACTED]"
		}
	}
	return val
}

func hashValue(val interface{}) string {
	raw := toString(val)
	if raw == "" {
		return ""
	}
	h := sha256.New()
	if hashSalt != "" {
		_, _ = h.Write([]byte(hashSalt))
	}
	_, _ = h.Write([]byte(raw))
	return "hash:" + hex.EncodeToString(h.Sum(nil))[:12]
}

func looksLikeJWT(s string) bool {
	parts := strings.Split(s, ".")
	return len(parts) == 3 && len(parts[0]) > 10 && len(parts[1]) > 10
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func redactionOn() bool {
	redactOnce.Do(func() {
		switch strings.TrimSpace(strings.ToLower(getenv("LOG_REDACTION_ENABLED"))) {
		case "0", "false", "no", "off":
			redactionEnabled = false
		default:
			redactionEnabled = true
		}
		hashSalt = strings.TrimSpace(getenv("LOG_HASH_SALT"))
	})
	return redactionEnabled
}
