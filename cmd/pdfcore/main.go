// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// pdfcore is a command-line front end for the pdf package: split, extract,
// merge, rotate, crop, optimize, sign, verify and recover PDF files.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	pdf "github.com/pdfcore/pdfcore"
)

func die(status int, format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(status)
}

func usage() {
	die(1, `Usage: %s COMMAND [ARGS...]

Commands:
  split INPUT OUTPUT-PREFIX
  extract INPUT OUTPUT PAGES           PAGES is a comma-separated 1-based list
  merge OUTPUT INPUT...
  rotate INPUT OUTPUT PAGE DEGREES
  crop INPUT OUTPUT PAGE LLX LLY URX URY
  optimize INPUT OUTPUT [LEVEL]        LEVEL is 1, 2 or 3 (default 2)
  sign INPUT OUTPUT PKCS12-PATH PKCS12-PASS
  verify INPUT
  recover INPUT OUTPUT                 rebuild a malformed PDF's xref/trailer`, os.Args[0])
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
	}

	var err error
	switch cmd := flag.Arg(0); cmd {
	case "split":
		err = runSplit(flag.Args()[1:])
	case "extract":
		err = runExtract(flag.Args()[1:])
	case "merge":
		err = runMerge(flag.Args()[1:])
	case "rotate":
		err = runRotate(flag.Args()[1:])
	case "crop":
		err = runCrop(flag.Args()[1:])
	case "optimize":
		err = runOptimize(flag.Args()[1:])
	case "sign":
		err = runSign(flag.Args()[1:])
	case "verify":
		err = runVerify(flag.Args()[1:])
	case "recover":
		err = runRecover(flag.Args()[1:])
	default:
		usage()
		return
	}
	if err != nil {
		die(1, "error: %s", err)
	}
}

func openReader(path string) (*pdf.Reader, func(), error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return r, func() { f.Close() }, nil
}

func runSplit(args []string) error {
	if len(args) != 2 {
		usage()
	}
	r, closer, err := openReader(args[0])
	if err != nil {
		return err
	}
	defer closer()

	docs, err := pdf.NewMutator(nil).Split(r)
	if err != nil {
		return err
	}
	for i, doc := range docs {
		name := fmt.Sprintf("%s-%03d.pdf", args[1], i+1)
		if err := os.WriteFile(name, doc, 0666); err != nil {
			return err
		}
	}
	return nil
}

func parsePageList(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	pages := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid page number %q", p)
		}
		pages = append(pages, n)
	}
	return pages, nil
}

func runExtract(args []string) error {
	if len(args) != 3 {
		usage()
	}
	r, closer, err := openReader(args[0])
	if err != nil {
		return err
	}
	defer closer()

	pages, err := parsePageList(args[2])
	if err != nil {
		return err
	}
	doc, err := pdf.NewMutator(nil).Extract(r, pages)
	if err != nil {
		return err
	}
	return os.WriteFile(args[1], doc, 0666)
}

func runMerge(args []string) error {
	if len(args) < 3 {
		usage()
	}
	readers := make([]*pdf.Reader, 0, len(args)-1)
	for _, path := range args[1:] {
		r, closer, err := openReader(path)
		if err != nil {
			return err
		}
		defer closer()
		readers = append(readers, r)
	}
	doc, err := pdf.NewMutator(nil).Merge(readers)
	if err != nil {
		return err
	}
	return os.WriteFile(args[0], doc, 0666)
}

func runRotate(args []string) error {
	if len(args) != 4 {
		usage()
	}
	r, closer, err := openReader(args[0])
	if err != nil {
		return err
	}
	defer closer()

	page, err := strconv.Atoi(args[2])
	if err != nil {
		return err
	}
	degrees, err := strconv.ParseInt(args[3], 10, 64)
	if err != nil {
		return err
	}
	doc, err := pdf.NewMutator(nil).Rotate(r, page, degrees)
	if err != nil {
		return err
	}
	return os.WriteFile(args[1], doc, 0666)
}

func runCrop(args []string) error {
	if len(args) != 7 {
		usage()
	}
	r, closer, err := openReader(args[0])
	if err != nil {
		return err
	}
	defer closer()

	page, err := strconv.Atoi(args[2])
	if err != nil {
		return err
	}
	var box [4]float64
	for i := range box {
		box[i], err = strconv.ParseFloat(args[3+i], 64)
		if err != nil {
			return err
		}
	}
	doc, err := pdf.NewMutator(nil).Crop(r, page, box)
	if err != nil {
		return err
	}
	return os.WriteFile(args[1], doc, 0666)
}

func runOptimize(args []string) error {
	if len(args) < 2 || len(args) > 3 {
		usage()
	}
	r, closer, err := openReader(args[0])
	if err != nil {
		return err
	}
	defer closer()

	opts := pdf.NewDefaultOptimizeOptions()
	if len(args) == 3 {
		level, err := strconv.Atoi(args[2])
		if err != nil {
			return err
		}
		opts.Level = pdf.OptimizeLevel(level)
	}
	fi, err := os.Stat(args[0])
	if err != nil {
		return err
	}

	out, err := os.Create(args[1])
	if err != nil {
		return err
	}
	defer out.Close()

	report, err := pdf.NewOptimizer(opts).Optimize(r, fi.Size(), out)
	if err != nil {
		return err
	}
	fmt.Printf("%d -> %d bytes (%.1f%% smaller), %d objects removed, %d streams deduplicated\n",
		report.OriginalSize, report.FinalSize, report.Ratio()*100, report.ObjectsRemoved, report.DuplicatesMerged)
	return nil
}

func runSign(args []string) error {
	if len(args) != 4 {
		usage()
	}
	r, closer, err := openReader(args[0])
	if err != nil {
		return err
	}
	defer closer()

	p12, err := os.ReadFile(args[2])
	if err != nil {
		return err
	}
	key, certs, err := pdf.PKCS12Parse(p12, args[3])
	if err != nil {
		return err
	}

	out, err := os.Create(args[1])
	if err != nil {
		return err
	}
	defer out.Close()

	return pdf.NewIncrementalSigner(nil).Sign(r, key, certs, out)
}

// runRecover repairs a PDF whose xref or trailer is damaged: it reports
// CheckIntegrity's findings to stderr, hands the file to RecoverPDF, and
// writes a freshly rebuilt (L1-optimized) document to OUTPUT.
func runRecover(args []string) error {
	if len(args) != 2 {
		usage()
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return err
	}

	status := pdf.CheckIntegrity(f, fi.Size())
	for _, issue := range status.Issues {
		fmt.Fprintf(os.Stderr, "warning: %s\n", issue)
	}

	r, err := pdf.RecoverPDF(f, fi.Size(), nil)
	if err != nil {
		return fmt.Errorf("recover: %w", err)
	}

	out, err := os.Create(args[1])
	if err != nil {
		return err
	}
	defer out.Close()

	opts := pdf.NewDefaultOptimizeOptions()
	opts.Level = pdf.OptimizeL1
	_, err = pdf.NewOptimizer(opts).Optimize(r, fi.Size(), out)
	return err
}

func runVerify(args []string) error {
	if len(args) != 1 {
		usage()
	}
	r, closer, err := openReader(args[0])
	if err != nil {
		return err
	}
	defer closer()

	report, err := pdf.Verify(r)
	if err != nil {
		return err
	}
	if len(report.Signatures) == 0 {
		fmt.Println("no signatures found")
		return nil
	}
	for _, sig := range report.Signatures {
		status := "valid"
		if !sig.Valid {
			status = fmt.Sprintf("INVALID: %v", sig.Err)
		}
		fmt.Printf("%s: %s (signed by %s)\n", sig.FieldName, status, sig.SignerCN)
	}
	if !report.AllValid() {
		os.Exit(1)
	}
	return nil
}
