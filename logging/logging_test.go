// Copyright 2021 The Wasm-GC Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestWithFields(t *testing.T) {

	logger := New().WithFields(map[string]interface{}{"a": 1, "b": "one"})
	logger = logger.WithFields(map[string]interface{}{"b": "two", "c": 3})

	fields := logger.GetFields()
	if len(fields) != 3 {
		t.Fatalf("expected 3 fields, got %v", fields)
	}
	if fields["b"] != "two" {
		t.Fatalf("expected field b to be overridden, got %v", fields["b"])
	}
}

func TestLevelFiltering(t *testing.T) {

	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(Info)

	logger.Debug("hidden %d", 1)
	logger.Info("shown %d", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatal("expected debug output to be filtered")
	}
	if !strings.Contains(out, "shown 2") {
		t.Fatalf("expected info output, got %q", out)
	}
}

func TestNoOpLogger(t *testing.T) {

	logger := NewNoOpLogger()
	if logger.GetLevel() != Info {
		t.Fatal("expected default info level")
	}
	logger.SetLevel(Debug)
	if logger.GetLevel() != Debug {
		t.Fatal("expected debug level")
	}

	child := logger.WithFields(map[string]interface{}{"a": 1})
	if child.GetFields()["a"] != 1 {
		t.Fatal("expected fields to be retained")
	}
	child.Debug("noop")
}
