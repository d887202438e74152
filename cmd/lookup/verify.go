package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/macrolens/productcheck/internal/domain"
	"github.com/macrolens/productcheck/internal/usecase"
)

var (
	verifyMode    string
	verifyBarcode string
	verifyUser    string
)

var verifyCmd = &cobra.Command{
	Use:   "verify [name]",
	Short: "Verify a product by name or barcode",
	Long: `Verifies a product against the internal catalog, the external databases,
or both (combined, the default). Exits non-zero when every source failed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVerify,
}

var scanCmd = &cobra.Command{
	Use:   "scan [barcode]",
	Short: "Verify a scanned barcode",
	Long:  `Validates the GTIN check digit and runs a combined verification by barcode.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runScan,
}

func init() {
	verifyCmd.Flags().StringVarP(&verifyMode, "mode", "m", "combined", "internal, external or combined")
	verifyCmd.Flags().StringVarP(&verifyBarcode, "barcode", "b", "", "GTIN barcode to verify")
	verifyCmd.Flags().StringVar(&verifyUser, "user", "", "user id recorded with the verification")
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(scanCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	mode, err := domain.ParseMode(verifyMode)
	if err != nil {
		return err
	}
	req := usecase.VerificationRequest{Barcode: verifyBarcode, UserID: verifyUser}
	if len(args) == 1 {
		req.Query = args[0]
	}
	if req.Barcode != "" && !domain.ValidBarcode(req.Barcode) {
		return fmt.Errorf("%w: %s", domain.ErrInvalidBarcode, req.Barcode)
	}
	return verify(cmd, req, mode)
}

func runScan(cmd *cobra.Command, args []string) error {
	code := strings.TrimSpace(args[0])
	if !domain.ValidBarcode(code) {
		return fmt.Errorf("%w: %s", domain.ErrInvalidBarcode, code)
	}
	return verify(cmd, usecase.VerificationRequest{Barcode: code}, domain.ModeCombined)
}

func verify(cmd *cobra.Command, req usecase.VerificationRequest, mode domain.Mode) error {
	result, err := core.Verifier.Verify(context.Background(), req, mode)
	if result == nil {
		return err
	}

	if outputJSON {
		if perr := printJSON(cmd, result); perr != nil {
			return perr
		}
	} else {
		printResult(cmd, result)
	}
	if errors.Is(err, domain.ErrVerificationFailed) {
		return err
	}
	return nil
}

func printResult(cmd *cobra.Command, r *domain.VerificationResult) {
	cmd.Printf("State:      %s\n", strings.ToUpper(string(r.State)))
	switch {
	case r.State == domain.StateFailed:
		cmd.Println("Result:     could not verify product")
	case r.Product == nil || !r.Found:
		cmd.Println("Result:     not found")
	default:
		status := "not verified"
		if r.Verified {
			status = "verified"
		}
		if r.Internal != nil && r.Internal.Verdict == domain.VerdictCounterfeit && r.Source == usecase.InternalSourceID {
			status = "COUNTERFEIT"
		}
		cmd.Printf("Product:    %s\n", r.Product.Name)
		cmd.Printf("Result:     %s (%d%%, %s)\n", status, r.ConfidencePercent, r.Source)
	}
	for _, s := range r.Sources {
		line := fmt.Sprintf("  %-14s %s", s.Name, s.Status)
		if s.Error != "" {
			line += ": " + s.Error
		}
		cmd.Println(line)
	}
	for _, alt := range r.Alternatives {
		cmd.Printf("  also:          %s (%s)\n", alt.Name, alt.Origin.SourceID)
	}
}
