// Package rfc9211 builds the Cache-Status HTTP response header field.
package rfc9211

import (
	"fmt"
	"strings"
)

// HeaderName is the name of the response header field.
const HeaderName = "Cache-Status"

type FwdReason string

const (
	// The request method's semantics require the request to be
	// forwarded.
	FwdReasonMethod FwdReason = "method"

	// The cache did not contain any responses that matched the
	// request URI.
	FwdReasonUriMiss FwdReason = "uri-miss"

	// The cache was able to select a response for the request, but
	// the request's semantics (here: the routing strategy) did not allow its use.
	FwdReasonRequest FwdReason = "request"
)

type CacheStatus struct {
	// Identifier of the cache, the first member of the list.
	Cache     string
	Hit       bool
	FwdReason FwdReason
	// FwdStatus is the status code the next hop returned, if the request was forwarded.
	FwdStatus int
	Stored    bool
	Detail    string
}

// SetHit marks the response as served from cache.
func (cs *CacheStatus) SetHit() {
	cs.Hit = true
	cs.FwdReason = ""
}

// Forward marks the response as fetched from the next hop.
func (cs *CacheStatus) Forward(reason FwdReason) {
	cs.Hit = false
	cs.FwdReason = reason
}

func (cs CacheStatus) String() string {
	var b strings.Builder
	b.WriteString(cs.Cache)
	if cs.Hit {
		b.WriteString("; hit")
	} else if cs.FwdReason != "" {
		fmt.Fprintf(&b, "; fwd=%s", cs.FwdReason)
		if cs.FwdStatus != 0 {
			fmt.Fprintf(&b, "; fwd-status=%d", cs.FwdStatus)
		}
	}
	if cs.Stored {
		b.WriteString("; stored")
	}
	if cs.Detail != "" {
		fmt.Fprintf(&b, "; detail=%s", cs.Detail)
	}
	return b.String()
}
