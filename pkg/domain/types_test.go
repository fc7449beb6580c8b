package domain

import (
	"encoding/json"
	"testing"
)

func TestIdentityAcceptsBothIDShapes(t *testing.T) {
	var admin Identity
	if err := json.Unmarshal([]byte(`{"_id":"a-1","name":"Root","email":"root@example.com"}`), &admin); err != nil {
		t.Fatalf("unmarshal admin: %v", err)
	}
	if admin.ID != "a-1" || admin.Email != "root@example.com" {
		t.Fatalf("unexpected admin identity: %+v", admin)
	}

	var user Identity
	if err := json.Unmarshal([]byte(`{"id":"u-1","isVerified":true}`), &user); err != nil {
		t.Fatalf("unmarshal user: %v", err)
	}
	if user.ID != "u-1" {
		t.Fatalf("id = %q, want u-1", user.ID)
	}

	out, err := json.Marshal(user)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"id":"u-1","isVerified":true}` {
		t.Fatalf("raw record not preserved: %s", out)
	}
}

func TestMoneyDecoding(t *testing.T) {
	cases := map[string]Money{
		`100`:     10000,
		`10.5`:    1050,
		`"19.99"`: 1999,
		`null`:    0,
	}
	for in, want := range cases {
		var m Money
		if err := json.Unmarshal([]byte(in), &m); err != nil {
			t.Fatalf("unmarshal %s: %v", in, err)
		}
		if m != want {
			t.Fatalf("unmarshal %s = %d, want %d", in, m, want)
		}
	}
	if got := Money(-1050).String(); got != "-10.50" {
		t.Fatalf("String() = %q", got)
	}
	var bad Money
	if err := json.Unmarshal([]byte(`"abc"`), &bad); err == nil {
		t.Fatalf("expected error for non-numeric amount")
	}
}

func TestParseMoneyRejectsOutOfRange(t *testing.T) {
	for _, in := range []string{"1e300", "-1e300", "92233720368547758.07", "1e17"} {
		if _, err := ParseMoney(in); err == nil {
			t.Fatalf("ParseMoney(%q): expected range error", in)
		}
	}
	var m Money
	if err := json.Unmarshal([]byte(`1e300`), &m); err == nil {
		t.Fatalf("expected unmarshal error for 1e300")
	}
	if v, err := ParseMoney("90000000000000000"); err != nil || v != 9000000000000000000 {
		t.Fatalf("largest amount = %d, %v", v, err)
	}
}

func TestParseOrderStatus(t *testing.T) {
	if got := ParseOrderStatus(" Shipped "); got != OrderShipped {
		t.Fatalf("got %q, want shipped", got)
	}
	if got := ParseOrderStatus(""); got != OrderUnknown {
		t.Fatalf("empty status should be unknown, got %q", got)
	}
}
