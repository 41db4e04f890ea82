// concrete-parametrize: demo driver for the circuit-solution
// parametrization pass. Builds a small two-partition circuit, runs the
// pass against a hand-written solution and prints the resulting client
// parameters.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/RafLaf/concrete/clientlib"
	"github.com/RafLaf/concrete/optimizer"
	"github.com/RafLaf/concrete/rewrite"
	"github.com/RafLaf/concrete/tfhe"
	"github.com/RafLaf/concrete/utils"
)

var (
	functionName = flag.String("function", "demo", "Circuit function name")
	outputFile   = flag.String("o", "", "Write client parameters JSON to this file")
	maxSweeps    = flag.Int("sweeps", 0, "Resolver sweep bound (0 = automatic)")
	verbose      = flag.Bool("verbose", true, "Verbose output")
)

func main() {
	flag.Parse()
	utils.Verbose = *verbose

	cfg := &utils.Config{FunctionName: *functionName, OutputPath: *outputFile, MaxSweeps: *maxSweeps}
	if err := utils.ValidateConfig(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	rewrite.MaxSweeps = cfg.MaxSweeps

	circuit, solution := buildDemo(cfg.FunctionName)

	stats := &utils.PassStats{}
	if err := rewrite.ParametrizeWithStats(circuit, solution, stats); err != nil {
		fmt.Fprintf(os.Stderr, "parametrization failed: %v\n", err)
		os.Exit(1)
	}
	utils.PrintPassStats(stats)

	params, err := clientlib.Build(circuit, solution, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "building client parameters failed: %v\n", err)
		os.Exit(1)
	}

	data, err := clientlib.Serialize(params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "serializing client parameters failed: %v\n", err)
		os.Exit(1)
	}

	if cfg.OutputPath != "" {
		if err := os.WriteFile(cfg.OutputPath, data, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "writing %s failed: %v\n", cfg.OutputPath, err)
			os.Exit(1)
		}
		fmt.Printf("client parameters written to %s (hash %#x)\n", cfg.OutputPath, params.Hash())
		return
	}

	fmt.Println(string(data))
	fmt.Printf("hash: %#x\n", params.Hash())
}

// buildDemo assembles a two-partition circuit: an addition under key 0
// followed by a bootstrap whose solution lives under key 1, forcing the
// pass to insert one conversion keyswitch.
func buildDemo(name string) (*tfhe.Circuit, *optimizer.CircuitSolution) {
	k0 := optimizer.SecretLweKey{Identifier: 0, GlweDimension: 1, PolynomialSize: 1024}
	k1 := optimizer.SecretLweKey{Identifier: 1, GlweDimension: 1, PolynomialSize: 2048}

	solution := &optimizer.CircuitSolution{
		CircuitKeys: optimizer.CircuitKeys{
			SecretKeys: []optimizer.SecretLweKey{k0, k1},
			BootstrapKeys: []optimizer.BootstrapKey{{
				Identifier: 0, InputKey: k1, OutputKey: k1,
				BrDecomposition: optimizer.KsDecompositionParameters{Level: 2, BaseLog: 15},
				Variance:        2e-32,
			}},
			KeyswitchKeys: []optimizer.KeySwitchKey{{
				Identifier: 0, InputKey: k1, OutputKey: k1,
				KsDecomposition: optimizer.KsDecompositionParameters{Level: 4, BaseLog: 4},
				Variance:        2e-20,
			}},
			ConversionKeyswitchKeys: []optimizer.ConversionKeySwitchKey{{
				Identifier: 0, InputKey: k0, OutputKey: k1,
				KsDecomposition: optimizer.KsDecompositionParameters{Level: 3, BaseLog: 6},
				Variance:        2e-24,
			}},
		},
		InstructionsKeys: []optimizer.InstructionKeys{
			{InputKey: 0, OutputKey: 0}, // 0: arguments and addition
			{InputKey: 1, OutputKey: 1, TluKeyswitchKey: 0, TluBootstrapKey: 0}, // 1: bootstrap
		},
	}

	ct := tfhe.CiphertextType{Key: tfhe.NoneKey(), BitWidth: 4}
	c := tfhe.NewCircuit(name)
	a := c.AddArgWithOID(ct, 0)
	b := c.AddArgWithOID(ct, 0)

	add := c.AppendOp(c.Body, tfhe.KindAdd, []*tfhe.Value{a, b}, ct)
	add.SetOID(0)

	lut := c.AppendOp(c.Body, tfhe.KindConstant, nil, tfhe.Tensor(tfhe.IntegerType{Width: 64}, 1024))
	lut.ConstValues = make([]int64, 1024)

	bs := c.AppendOp(c.Body, tfhe.KindBootstrap, []*tfhe.Value{add.Result(0), lut.Result(0)}, ct)
	bs.SetOID(1)

	c.AppendOp(c.Body, tfhe.KindReturn, []*tfhe.Value{bs.Result(0)})
	return c, solution
}
