package access

import "testing"

func TestAllowed(t *testing.T) {
	admin := &Caller{ID: 1, IsAdmin: true}
	member := &Caller{ID: 2}

	cases := []struct {
		name      string
		caller    *Caller
		isPrivate bool
		grant     *Grant
		op        Op
		allow     bool
	}{
		{name: "admin write private", caller: admin, isPrivate: true, op: OpWrite, allow: true},
		{name: "admin read private", caller: admin, isPrivate: true, op: OpRead, allow: true},
		{name: "anonymous read public", caller: nil, isPrivate: false, op: OpRead, allow: true},
		{name: "anonymous read private", caller: nil, isPrivate: true, op: OpRead, allow: false},
		{name: "member read public", caller: member, isPrivate: false, op: OpRead, allow: true},
		{name: "member write public", caller: member, isPrivate: false, op: OpWrite, allow: true},
		{name: "member no grant read private", caller: member, isPrivate: true, grant: nil, op: OpRead, allow: false},
		{name: "member no grant write private", caller: member, isPrivate: true, grant: nil, op: OpWrite, allow: false},
		{name: "read-only grant read", caller: member, isPrivate: true, grant: &Grant{WriteAccess: false}, op: OpRead, allow: true},
		{name: "read-only grant write", caller: member, isPrivate: true, grant: &Grant{WriteAccess: false}, op: OpWrite, allow: false},
		{name: "write grant read", caller: member, isPrivate: true, grant: &Grant{WriteAccess: true}, op: OpRead, allow: true},
		{name: "write grant write", caller: member, isPrivate: true, grant: &Grant{WriteAccess: true}, op: OpWrite, allow: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Allowed(tc.caller, tc.isPrivate, tc.grant, tc.op); got != tc.allow {
				t.Fatalf("Allowed(%+v, private=%v, %+v, %q) = %v, want %v", tc.caller, tc.isPrivate, tc.grant, tc.op, got, tc.allow)
			}
		})
	}
}
