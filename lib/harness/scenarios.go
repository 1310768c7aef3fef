// Copyright 2026 The Fenceline Authors
// SPDX-License-Identifier: Apache-2.0

package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// DefaultScenarios returns the full adversarial suite. Every scenario
// assumes an Env with at least two seeded tenants; tenants[1] plays
// the adversary probing tenants[0]'s resources.
func DefaultScenarios() []Scenario {
	return []Scenario{
		{
			Name:  "own resources stay reachable",
			Class: "control",
			Run:   verifySelfAccess,
		},
		{
			Name:  "requests without a session",
			Class: "unauthenticated",
			Run:   probeUnauthenticated,
		},
		{
			Name:  "foreign record by id",
			Class: "direct-reference",
			Run:   probeForeignRecord,
		},
		{
			Name:  "foreign entries and blobs",
			Class: "direct-reference",
			Run:   probeForeignEntriesAndBlobs,
		},
		{
			Name:  "negated code filter",
			Class: "filter-inversion",
			Run:   probeFilterInversion,
		},
		{
			Name:  "blob listing prefix escape",
			Class: "prefix-escape",
			Run:   probePrefixEscape,
		},
		{
			Name:  "revoked and tampered tokens",
			Class: "token-misuse",
			Run:   probeTokenMisuse,
		},
		{
			Name:  "owner field smuggling",
			Class: "owner-spoofing",
			Run:   probeOwnerSpoofing,
		},
		{
			Name:  "principal provisioning over the wire",
			Class: "privilege-escalation",
			Run:   probePrivilegeEscalation,
		},
	}
}

// verifySelfAccess is the positive control: a denial-only server
// would pass every adversarial probe, so first confirm tenants can
// still reach their own data.
func verifySelfAccess(ctx context.Context, env *Env) error {
	var breaches []error
	for _, tenant := range env.Tenants {
		for code, record := range tenant.Records {
			fetched, err := tenant.Client.Record(ctx, record.ID)
			if err != nil {
				breaches = append(breaches, breach("%s cannot fetch own record %q: %v", tenant.Fixture.Login, code, err))
				continue
			}
			if fetched.Code != code {
				breaches = append(breaches, breach("own record %q came back as %q", code, fetched.Code))
			}
			if _, err := tenant.Client.ListEntries(ctx, record.ID); err != nil {
				breaches = append(breaches, breach("%s cannot list own entries of %q: %v", tenant.Fixture.Login, code, err))
			}
		}
		for _, fixtureRecord := range tenant.Fixture.Records {
			for _, fixtureBlob := range fixtureRecord.Blobs {
				content, err := tenant.Client.GetBlob(ctx, fixtureBlob.Key)
				if err != nil {
					breaches = append(breaches, breach("%s cannot download own blob %q: %v", tenant.Fixture.Login, fixtureBlob.Key, err))
					continue
				}
				if string(content) != fixtureBlob.Content {
					breaches = append(breaches, breach("own blob %q content changed", fixtureBlob.Key))
				}
			}
		}
	}
	return collectBreaches(breaches...)
}

// probeUnauthenticated hits every read route with no credential at
// all. Everything must be refused before any data is consulted.
func probeUnauthenticated(ctx context.Context, env *Env) error {
	victim := env.Tenants[0]
	anonymous := NewClient(env.BaseURL, env.HTTP)

	var breaches []error
	_, err := anonymous.ListRecords(ctx, "", "")
	breaches = append(breaches, expectUnauthorized(err, "listing records without a session"))

	for _, record := range victim.Records {
		_, err := anonymous.Record(ctx, record.ID)
		breaches = append(breaches, expectUnauthorized(err, "fetching a record without a session"))
		_, err = anonymous.ListEntries(ctx, record.ID)
		breaches = append(breaches, expectUnauthorized(err, "listing entries without a session"))
	}

	_, err = anonymous.ListBlobs(ctx, "")
	breaches = append(breaches, expectUnauthorized(err, "listing blobs without a session"))
	for _, fixtureRecord := range victim.Fixture.Records {
		for _, fixtureBlob := range fixtureRecord.Blobs {
			_, err := anonymous.GetBlob(ctx, fixtureBlob.Key)
			breaches = append(breaches, expectUnauthorized(err, "downloading a blob without a session"))
		}
	}
	return collectBreaches(breaches...)
}

// probeForeignRecord has the adversary fetch a victim record by its
// real ID and by its code filter. Both must be indistinguishable from
// probing a resource that does not exist.
func probeForeignRecord(ctx context.Context, env *Env) error {
	victim, adversary := env.Tenants[0], env.Tenants[1]

	var breaches []error
	for code, record := range victim.Records {
		_, err := adversary.Client.Record(ctx, record.ID)
		breaches = append(breaches, expectNotFound(err, fmt.Sprintf("fetching foreign record %s", record.ID)))

		listed, err := adversary.Client.ListRecords(ctx, code, "")
		if err != nil {
			breaches = append(breaches, breach("listing with foreign code %q: %v", code, err))
		} else if len(listed) != 0 {
			breaches = append(breaches, breach("listing with foreign code %q returned %d rows", code, len(listed)))
		}
	}

	// The denial for a real foreign ID and for a fabricated one must
	// carry the same status, or the status itself confirms existence.
	_, err := adversary.Client.Record(ctx, "rec-does-not-exist")
	breaches = append(breaches, expectNotFound(err, "fetching a fabricated record ID"))

	return collectBreaches(breaches...)
}

// probeForeignEntriesAndBlobs walks the victim's entries and blob
// keys with the adversary's session.
func probeForeignEntriesAndBlobs(ctx context.Context, env *Env) error {
	victim, adversary := env.Tenants[0], env.Tenants[1]

	var breaches []error
	for _, record := range victim.Records {
		_, err := adversary.Client.ListEntries(ctx, record.ID)
		breaches = append(breaches, expectNotFound(err, fmt.Sprintf("listing entries of foreign record %s", record.ID)))

		_, err = adversary.Client.CreateEntry(ctx, record.ID, "", "planted by adversary")
		breaches = append(breaches, expectNotFound(err, fmt.Sprintf("creating an entry under foreign record %s", record.ID)))
	}

	for _, fixtureRecord := range victim.Fixture.Records {
		for _, fixtureBlob := range fixtureRecord.Blobs {
			_, err := adversary.Client.GetBlob(ctx, fixtureBlob.Key)
			breaches = append(breaches, expectNotFound(err, fmt.Sprintf("downloading foreign blob %q", fixtureBlob.Key)))

			_, err = adversary.Client.PutBlob(ctx, fixtureBlob.Key, []byte("overwrite attempt"))
			breaches = append(breaches, expectNotFound(err, fmt.Sprintf("uploading to foreign blob key %q", fixtureBlob.Key)))

			// The denied upload must not have touched the victim's
			// blob: same content as seeded.
			content, err := victim.Client.GetBlob(ctx, fixtureBlob.Key)
			if err != nil {
				breaches = append(breaches, breach("victim blob %q unreadable after denied upload: %v", fixtureBlob.Key, err))
			} else if string(content) != fixtureBlob.Content {
				breaches = append(breaches, breach("denied upload altered blob %q", fixtureBlob.Key))
			}
		}
	}
	return collectBreaches(breaches...)
}

// probeFilterInversion negates the adversary's own codes one by one.
// The inverted filter must subtract from the adversary's scope, never
// widen it into other tenants' rows.
func probeFilterInversion(ctx context.Context, env *Env) error {
	adversary := env.Tenants[1]

	own := make(map[string]bool)
	for code := range adversary.Records {
		own[code] = true
	}

	var breaches []error
	for code := range adversary.Records {
		listed, err := adversary.Client.ListRecords(ctx, "", code)
		if err != nil {
			breaches = append(breaches, breach("inverted filter code_ne=%q: %v", code, err))
			continue
		}
		for _, record := range listed {
			if !own[record.Code] {
				breaches = append(breaches, breach("inverted filter code_ne=%q surfaced foreign record %q", code, record.Code))
			}
			if record.Code == code {
				breaches = append(breaches, breach("inverted filter code_ne=%q returned the excluded code", code))
			}
		}
	}
	return collectBreaches(breaches...)
}

// probePrefixEscape aims the blob listing prefix at foreign codes and
// traversal shapes. Every probe must come back empty.
func probePrefixEscape(ctx context.Context, env *Env) error {
	victim, adversary := env.Tenants[0], env.Tenants[1]

	prefixes := []string{"", "..", "../", "//"}
	for code := range victim.Records {
		prefixes = append(prefixes, code, code+"/", code+"/..")
	}
	for code := range adversary.Records {
		// A traversal suffix on an owned code must not step outside it.
		prefixes = append(prefixes, code+"/../"+firstKey(victim.Records))
	}

	var breaches []error
	for _, prefix := range prefixes {
		infos, err := adversary.Client.ListBlobs(ctx, prefix)
		if err != nil {
			breaches = append(breaches, breach("listing blobs with prefix %q: %v", prefix, err))
			continue
		}
		for _, info := range infos {
			code, _, found := strings.Cut(info.Key, "/")
			if !found || !ownsCode(adversary, code) {
				breaches = append(breaches, breach("prefix %q surfaced foreign blob %q", prefix, info.Key))
			}
		}
	}
	return collectBreaches(breaches...)
}

// probeTokenMisuse exercises revoked, tampered, and truncated bearer
// tokens. It uses a throwaway session so the seeded tenants keep
// their credentials.
func probeTokenMisuse(ctx context.Context, env *Env) error {
	adversary := env.Tenants[1]

	throwaway := NewClient(env.BaseURL, env.HTTP)
	if err := throwaway.SignIn(ctx, adversary.Fixture.Login, adversary.Fixture.Secret); err != nil {
		return fmt.Errorf("opening throwaway session: %w", err)
	}
	revoked := throwaway.Token()
	if err := throwaway.SignOut(ctx); err != nil {
		return fmt.Errorf("revoking throwaway session: %w", err)
	}

	var breaches []error

	throwaway.SetToken(revoked)
	_, err := throwaway.ListRecords(ctx, "", "")
	breaches = append(breaches, expectUnauthorized(err, "listing records with a revoked token"))

	live := adversary.Client.Token()
	for _, forged := range forgeTokens(live) {
		throwaway.SetToken(forged.token)
		_, err := throwaway.ListRecords(ctx, "", "")
		breaches = append(breaches, expectUnauthorized(err, fmt.Sprintf("listing records with a %s token", forged.kind)))
	}

	throwaway.SetToken("")
	_, err = throwaway.ListRecords(ctx, "", "")
	breaches = append(breaches, expectUnauthorized(err, "listing records with no token"))

	return collectBreaches(breaches...)
}

type forgedToken struct {
	kind  string
	token string
}

// forgeTokens derives invalid bearers from a live one.
func forgeTokens(live string) []forgedToken {
	forged := []forgedToken{
		{kind: "garbage", token: "not-a-token"},
	}
	if len(live) > 4 {
		forged = append(forged, forgedToken{kind: "truncated", token: live[:len(live)/2]})

		// Flip a character near the end, inside the signature.
		flipped := []byte(live)
		i := len(flipped) - 2
		if flipped[i] == 'A' {
			flipped[i] = 'B'
		} else {
			flipped[i] = 'A'
		}
		forged = append(forged, forgedToken{kind: "tampered", token: string(flipped)})
	}
	return forged
}

// probeOwnerSpoofing smuggles owner fields into the record-create
// body. The server's schema must drop them: the record always lands
// in the caller's scope.
func probeOwnerSpoofing(ctx context.Context, env *Env) error {
	victim, adversary := env.Tenants[0], env.Tenants[1]
	victimOwner := ownerOf(victim)
	spoofCode := "SPOOF-" + firstKey(adversary.Records)

	body, err := json.Marshal(map[string]string{
		"code":     spoofCode,
		"label":    "owner smuggling probe",
		"owner_id": victimOwner,
		"owner":    victim.Fixture.Login,
	})
	if err != nil {
		return err
	}

	record, err := adversary.Client.CreateRecordRaw(ctx, body)
	if IsStatus(err, http.StatusConflict) {
		// A previous run already planted the probe record. Fetch it
		// and check where it landed.
		listed, listErr := adversary.Client.ListRecords(ctx, spoofCode, "")
		if listErr != nil || len(listed) != 1 {
			return breach("spoofed record conflict but adversary cannot see it: %v", listErr)
		}
		record, err = listed[0], nil
	}
	if err != nil {
		return fmt.Errorf("creating spoofed record: %w", err)
	}

	if victimOwner != "" && record.OwnerID == victimOwner {
		return breach("smuggled owner_id was honored: record %s landed in victim scope", record.ID)
	}

	// The real test is reachability: the victim must not see the
	// planted record, and the adversary must.
	var breaches []error
	if _, err := adversary.Client.Record(ctx, record.ID); err != nil {
		breaches = append(breaches, breach("adversary cannot read its own spoof-probe record: %v", err))
	}
	if _, err := victim.Client.Record(ctx, record.ID); !IsStatus(err, http.StatusNotFound) {
		breaches = append(breaches, breach("victim can reach the adversary's spoof-probe record (err=%v)", err))
	}
	return collectBreaches(breaches...)
}

// probePrivilegeEscalation tries to mint a principal through the API.
// The route must be invisible, and the attempted login must stay
// unusable.
func probePrivilegeEscalation(ctx context.Context, env *Env) error {
	adversary := env.Tenants[1]

	const plantedLogin = "harness-escalation-probe"
	err := adversary.Client.CreatePrincipal(ctx, plantedLogin, "escalation-secret", "operator")
	if b := expectNotFound(err, "provisioning a principal over the wire"); b != nil {
		return b
	}

	// Even with the uniform denial on the route, verify nothing was
	// created behind it.
	probe := NewClient(env.BaseURL, env.HTTP)
	if err := probe.SignIn(ctx, plantedLogin, "escalation-secret"); err == nil {
		return breach("planted principal %q can sign in", plantedLogin)
	}
	return nil
}

// ownerOf reads the tenant's owner ID off any seeded record.
func ownerOf(tenant *Tenant) string {
	for _, record := range tenant.Records {
		return record.OwnerID
	}
	return ""
}

// ownsCode reports whether the tenant seeded a record with this code.
func ownsCode(tenant *Tenant, code string) bool {
	_, ok := tenant.Records[code]
	return ok
}

// firstKey returns an arbitrary key of a non-empty map.
func firstKey(records map[string]Record) string {
	for code := range records {
		return code
	}
	return ""
}
