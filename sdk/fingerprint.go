package sdk

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Fingerprinter maps a request description to a dedup key. It must be
// deterministic; it does not need to be collision free or secure.
type Fingerprinter func(s string) uint64

const fingerprintMask = 1<<53 - 1

// Fingerprint53 is the default Fingerprinter: xxhash64 truncated to 53 bits.
func Fingerprint53(s string) uint64 {
	return xxhash.Sum64String(s) & fingerprintMask
}

const fieldSep = "\x1f"

// requestKey is the in-flight key: final URL, verb, payload and headers.
func requestKey(fp Fingerprinter, url string, verb Verb, payload any, headers map[string]string) uint64 {
	var b strings.Builder
	b.WriteString(url)
	b.WriteString(fieldSep)
	b.WriteString(verb.String())
	b.WriteString(fieldSep)
	b.WriteString(payloadSignature(payload))
	b.WriteString(fieldSep)
	writeSortedMap(&b, headers)
	return fp(b.String())
}

// callKey identifies a failed call in the replay cache. Path variables are
// part of the key because the route is still a template.
func callKey(fp Fingerprinter, call CallParameters) uint64 {
	var b strings.Builder
	b.WriteString(call.Route)
	b.WriteString(fieldSep)
	b.WriteString(call.Verb.String())
	b.WriteString(fieldSep)
	b.WriteString(payloadSignature(call.Payload))
	b.WriteString(fieldSep)
	writeSortedMap(&b, call.Headers)
	b.WriteString(fieldSep)
	writeSortedMap(&b, call.PathVariables)
	return fp(b.String())
}

func payloadSignature(payload any) string {
	switch p := payload.(type) {
	case nil:
		return ""
	case Form:
		return p.signature()
	case *Form:
		if p == nil {
			return ""
		}
		return p.signature()
	case json.RawMessage:
		return string(p)
	case []byte:
		return string(p)
	case string:
		return p
	}
	if data, err := json.Marshal(payload); err == nil {
		return string(data)
	}
	return fmt.Sprintf("%#v", payload)
}

func writeSortedMap(b *strings.Builder, m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(m[k])
		b.WriteByte(';')
	}
}
