package clientlib

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func sampleParameters() *ClientParameters {
	return &ClientParameters{
		SecretKeys: map[string]LweSecretKeyParam{
			"0": {Size: 1024},
			"1": {Size: 2048},
		},
		BootstrapKeys: map[string]BootstrapKeyParam{
			"0": {InputSecretKeyID: "0", OutputSecretKeyID: "1", Level: 2, BaseLog: 15, GlweDimension: 1, Variance: 1e-32},
		},
		KeyswitchKeys: map[string]KeyswitchKeyParam{
			"0":     {InputSecretKeyID: "1", OutputSecretKeyID: "1", Level: 4, BaseLog: 4, Variance: 1e-20},
			"conv0": {InputSecretKeyID: "0", OutputSecretKeyID: "1", Level: 3, BaseLog: 6, Variance: 1e-24},
		},
		Inputs: []CircuitGate{
			{
				Encryption: &EncryptionGate{SecretKeyID: "0", Variance: 1e-12, Encoding: Encoding{Precision: 4}},
				Shape:      CircuitGateShape{Width: 4, Size: 1},
			},
			{Shape: CircuitGateShape{Width: 8, Size: 1}},
		},
		Outputs: []CircuitGate{
			{
				Encryption: &EncryptionGate{SecretKeyID: "1", Encoding: Encoding{Precision: 4}},
				Shape:      CircuitGateShape{Width: 4, Dimensions: []int64{2, 3}, Size: 6},
			},
		},
		FunctionName: "main",
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	p := sampleParameters()
	data, err := Serialize(p)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	got, err := Deserialize(data)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if !p.Equal(got) {
		t.Errorf("round trip changed the parameters:\n%s", data)
	}
}

func TestSerializeFieldNames(t *testing.T) {
	data, err := Serialize(sampleParameters())
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	doc := string(data)
	for _, field := range []string{
		`"secretKeys"`, `"bootstrapKeys"`, `"keyswitchKeys"`,
		`"inputs"`, `"outputs"`, `"functionName"`,
		`"encryption"`, `"encoding"`, `"precision"`,
	} {
		if !strings.Contains(doc, field) {
			t.Errorf("document is missing %s:\n%s", field, doc)
		}
	}
}

func TestDeserializeRejectsUnknownFields(t *testing.T) {
	_, err := Deserialize([]byte(`{"functionName": "f", "extra": 1}`))
	if !errors.Is(err, ErrMalformedParameters) {
		t.Errorf("got %v, want ErrMalformedParameters", err)
	}
}

func TestDeserializeRejectsTrailingData(t *testing.T) {
	_, err := Deserialize([]byte(`{"functionName": "f"} {"functionName": "g"}`))
	if !errors.Is(err, ErrMalformedParameters) {
		t.Errorf("got %v, want ErrMalformedParameters", err)
	}
}

func TestDeserializeRejectsGarbage(t *testing.T) {
	_, err := Deserialize([]byte(`not json`))
	if !errors.Is(err, ErrMalformedParameters) {
		t.Errorf("got %v, want ErrMalformedParameters", err)
	}
}

func TestSaveLoad(t *testing.T) {
	p := sampleParameters()
	path := filepath.Join(t.TempDir(), "params.json")

	if err := Save(path, p); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !p.Equal(got) {
		t.Error("loaded parameters differ from the saved ones")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("loading a missing file succeeded")
	}
}
