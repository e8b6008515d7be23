package logging

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestKVPairSerialization(t *testing.T) {
	testCases := []struct {
		kvpairs  []interface{}
		expected map[string]interface{}
	}{
		{
			[]interface{}{"a", 1, "b", "v"},
			map[string]interface{}{
				"a": 1,
				"b": "v",
			},
		},
		{
			[]interface{}{"a"},
			map[string]interface{}{},
		},
		{
			[]interface{}{"a", 1, "b"},
			map[string]interface{}{},
		},
		{
			[]interface{}{3, "three"},
			map[string]interface{}{
				"3": "three",
			},
		},
	}

	for i, tc := range testCases {
		actual := serializeKVPairs(tc.kvpairs...)
		if !reflect.DeepEqual(actual, tc.expected) {
			t.Errorf("Test case %d: Expected result %v, but got %v", i, tc.expected, actual)
		}
	}
}

func TestSetField(t *testing.T) {
	l := NewLogrusLogger("test", "worker", 1).(*LogrusLogger)
	l.SetField("state", "open")
	l.SetField("state", "closed")
	expected := map[string]interface{}{"worker": 1, "state": "closed"}
	if !reflect.DeepEqual(l.fields, expected) {
		t.Errorf("Expected fields %v, but got %v", expected, l.fields)
	}
}

func TestSetOutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "run.log")
	closeFn, err := SetOutputFile(path, 1, 1)
	if err != nil {
		t.Fatalf("Failed to set output file: %v", err)
	}
	NewLogrusLogger("test").Warn("written to file", "k", "v")
	if err := closeFn(); err != nil {
		t.Fatalf("Failed to close log file: %v", err)
	}
	logrus.SetFormatter(&logrus.TextFormatter{})

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(b), "written to file") {
		t.Errorf("Expected log file to contain message, but got %q", string(b))
	}
}

func TestSetOutputFileRequiresPath(t *testing.T) {
	if _, err := SetOutputFile("", 1, 1); err == nil {
		t.Error("Expected an error for an empty log file path")
	}
}
