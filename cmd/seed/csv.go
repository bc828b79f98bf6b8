package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"strings"

	"github.com/google/uuid"
)

// firms.csv:  key,name,phone,email,logo_url
// users.csv:  email,full_name,phone,password,role,firm_key
//
// Keys are stable slugs; firm and user ids are derived from them under the
// --namespace uuid so re-running a seed updates rows instead of duplicating.

type FirmRow struct {
	Key     string
	ID      uuid.UUID
	Name    string
	Phone   string
	Email   string
	LogoURL string
}

type UserRow struct {
	ID       uuid.UUID
	Email    string
	FullName string
	Phone    string
	Password string
	Role     string
	FirmKey  string
}

var roles = map[string]bool{"agent": true, "admin": true}

func FirmID(ns uuid.UUID, key string) uuid.UUID {
	return uuid.NewSHA1(ns, []byte("firm:"+strings.ToLower(key)))
}

func UserID(ns uuid.UUID, email string) uuid.UUID {
	return uuid.NewSHA1(ns, []byte("user:"+strings.ToLower(email)))
}

// readTable returns rows as header-keyed maps.
func readTable(r io.Reader, required ...string) ([]map[string]string, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	headers, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(headers) > 0 {
		headers[0] = strings.TrimPrefix(headers[0], "\ufeff")
	}
	idx := map[string]int{}
	for i, h := range headers {
		idx[strings.TrimSpace(h)] = i
	}
	for _, k := range required {
		if _, ok := idx[k]; !ok {
			return nil, fmt.Errorf("missing required column: %s", k)
		}
	}

	var out []map[string]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv read: %w", err)
		}
		row := make(map[string]string, len(idx))
		for k, i := range idx {
			if i < len(rec) {
				row[k] = strings.TrimSpace(rec[i])
			}
		}
		out = append(out, row)
	}
	return out, nil
}

func LoadFirms(r io.Reader, ns uuid.UUID) ([]FirmRow, error) {
	rows, err := readTable(r, "key", "name")
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	out := make([]FirmRow, 0, len(rows))
	for i, row := range rows {
		key := strings.ToLower(row["key"])
		switch {
		case key == "":
			return nil, fmt.Errorf("firms row %d: key is empty", i+2)
		case row["name"] == "":
			return nil, fmt.Errorf("firms row %d: name is empty", i+2)
		case seen[key]:
			return nil, fmt.Errorf("firms row %d: duplicate key %q", i+2, key)
		}
		seen[key] = true
		out = append(out, FirmRow{
			Key:     key,
			ID:      FirmID(ns, key),
			Name:    row["name"],
			Phone:   row["phone"],
			Email:   row["email"],
			LogoURL: row["logo_url"],
		})
	}
	return out, nil
}

func LoadUsers(r io.Reader, ns uuid.UUID, firms []FirmRow) ([]UserRow, error) {
	rows, err := readTable(r, "email", "password", "firm_key")
	if err != nil {
		return nil, err
	}
	known := map[string]bool{}
	for _, f := range firms {
		known[f.Key] = true
	}

	seen := map[string]bool{}
	out := make([]UserRow, 0, len(rows))
	for i, row := range rows {
		line := i + 2
		addr, err := mail.ParseAddress(row["email"])
		if err != nil {
			return nil, fmt.Errorf("users row %d: %w", line, err)
		}
		email := strings.ToLower(addr.Address)
		if seen[email] {
			return nil, fmt.Errorf("users row %d: duplicate email %s", line, email)
		}
		seen[email] = true

		if len(row["password"]) < 8 {
			return nil, fmt.Errorf("users row %d: password shorter than 8 characters", line)
		}
		role := strings.ToLower(row["role"])
		if role == "" {
			role = "agent"
		}
		if !roles[role] {
			return nil, fmt.Errorf("users row %d: unknown role %q", line, role)
		}
		firm := strings.ToLower(row["firm_key"])
		if firm != "" && !known[firm] {
			return nil, fmt.Errorf("users row %d: firm_key %q not in firms file", line, firm)
		}

		out = append(out, UserRow{
			ID:       UserID(ns, email),
			Email:    email,
			FullName: row["full_name"],
			Phone:    row["phone"],
			Password: row["password"],
			Role:     role,
			FirmKey:  firm,
		})
	}
	return out, nil
}
