// Package metadata resolves the test management metadata of tests from a
// YAML file, e.g.
//
//	tests:
//	  "github.com/acme/shop::TestCheckout":
//	    id: 12
//	    title: Checkout succeeds
//	    suites: [Shop, Checkout]
//	    fields:
//	      severity: major
//	    params:
//	      currency: EUR
package metadata

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/raphi011/testops/internal/model"
	"gopkg.in/yaml.v3"
)

type File struct {
	Tests map[string]model.Metadata `yaml:"tests"`
}

// Key returns the key a test is looked up by.
func Key(className, methodName string) string {
	return className + "::" + methodName
}

// Parse reads the metadata file from r.
func Parse(r io.Reader) (*File, error) {
	f := &File{}

	d := yaml.NewDecoder(r)
	d.KnownFields(true)

	if err := d.Decode(f); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "decoding metadata file")
	}

	if f.Tests == nil {
		f.Tests = map[string]model.Metadata{}
	}

	return f, nil
}

// LoadFile reads the metadata file at path.
func LoadFile(path string) (*File, error) {
	r, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening metadata file")
	}
	defer r.Close()

	f, err := Parse(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return f, nil
}

// Resolve returns the metadata of a test, tests that are not listed have no
// metadata.
func (f *File) Resolve(className, methodName string) (model.Metadata, error) {
	return f.Tests[Key(className, methodName)], nil
}
