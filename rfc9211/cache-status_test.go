package rfc9211

import "testing"

func TestHitString(t *testing.T) {
	cs := CacheStatus{Cache: "OfflineCache", Detail: "precache"}
	cs.SetHit()
	if s := cs.String(); s != "OfflineCache; hit; detail=precache" {
		t.Fatalf("Cache-Status is %s", s)
	}
}

func TestForwardString(t *testing.T) {
	cs := CacheStatus{Cache: "OfflineCache", Detail: "network-first"}
	cs.Forward(FwdReasonRequest)
	cs.FwdStatus = 200
	cs.Stored = true
	if s := cs.String(); s != "OfflineCache; fwd=request; fwd-status=200; stored; detail=network-first" {
		t.Fatalf("Cache-Status is %s", s)
	}
}
