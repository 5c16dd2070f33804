/*
LICENSE
  Copyright (C) 2025 the Bona Studio project

  This is free software: you can redistribute it and/or modify it
  under the terms of the GNU General Public License as published by
  the Free Software Foundation, either version 3 of the License, or
  (at your option) any later version.

  It is distributed in the hope that it will be useful,
  but WITHOUT ANY WARRANTY; without even the implied warranty of
  MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
  GNU General Public License for more details.

  You should have received a copy of the GNU General Public License
  in gpl.txt. If not, see http://www.gnu.org/licenses/.
*/

// Package secrets loads service credentials from a secrets file.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// GetSecrets looks up secrets from the file specified by the
// <PROJECTID>_SECRETS environment variable. Each line is a
// colon-separated key and value. The keys argument specifies
// required keys.
func GetSecrets(projectID string, keys []string) (map[string]string, error) {
	var m map[string]string
	ev := strings.ToUpper(projectID) + "_SECRETS"
	path := os.Getenv(ev)
	if path == "" {
		return m, errors.New(ev + " environment variable not defined")
	}

	bytes, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}

	// Strip carriage returns, if any.
	s := strings.ReplaceAll(string(bytes), "\r", "")

	// There is one colon-separated secret per line.
	m = split(s, "\n", ":")
	for _, k := range keys {
		v := m[k]
		if v == "" {
			return m, fmt.Errorf("missing key %s", k)
		}
	}
	return m, nil
}

// GetSecret returns a single secret, or an empty string with an
// error when the secrets file or the key is missing.
func GetSecret(projectID, key string) (string, error) {
	m, err := GetSecrets(projectID, []string{key})
	if err != nil {
		return "", err
	}
	return m[key], nil
}

// split splits s into records on sep1, then each record into a key
// and value on the first occurrence of sep2. Records without sep2 or
// with an empty key are skipped.
func split(s, sep1, sep2 string) map[string]string {
	m := map[string]string{}
	for _, line := range strings.Split(s, sep1) {
		k, v, found := strings.Cut(line, sep2)
		if !found {
			continue
		}
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		m[k] = strings.TrimSpace(v)
	}
	return m
}
