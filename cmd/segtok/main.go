// Command segtok trains subword tokenizers and converts between text and
// token identifiers.
//
//	segtok train  -algo bpe -corpus corpus.txt -vocab 8000 -out model.json
//	segtok encode -model model.json < text   (one document per line)
//	segtok decode -model model.json < ids    (one id sequence per line)
//
// Corpora ending in .parquet are read from their text column; anything else
// is read as one document per line. Logging verbosity follows the klog flags
// given before the subcommand, e.g. `segtok -v=1 train ...`.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"k8s.io/klog/v2"

	"github.com/segtok/segtok/corpus"
	"github.com/segtok/segtok/modelfile"
	"github.com/segtok/segtok/tokenizers"
	"github.com/segtok/segtok/tokenizers/api"
)

// batchLines is how many stdin lines encode/decode collect before running a
// parallel batch, bounding memory on unbounded pipes.
const batchLines = 4096

func main() {
	klog.InitFlags(nil)
	flag.Usage = usage
	flag.Parse()
	defer klog.Flush()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}
	args := flag.Args()[1:]
	switch cmd := flag.Arg(0); cmd {
	case "train":
		runTrain(args)
	case "encode":
		runEncode(args)
	case "decode":
		runDecode(args)
	default:
		fatal("unknown command %q, want train, encode or decode", cmd)
	}
}

func runTrain(args []string) {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	algoName := fs.String("algo", "bpe", "algorithm: bpe, byte_bpe, wordpiece or unigram")
	corpusPath := fs.String("corpus", "", "training corpus file (required)")
	vocab := fs.Int("vocab", 0, "target vocabulary size, specials included (required)")
	out := fs.String("out", "model.json", "where to write the trained model")
	specials := fs.String("special", "", "comma-separated special tokens to append")
	unknown := fs.String("unknown", "", "unknown-token content, appended to the specials")
	minPair := fs.Int("min-pair", 0, "merge only pairs seen strictly more often than this")
	maxSubword := fs.Int("max-subword", 0, "longest entry in symbols (0 = default)")
	pattern := fs.String("pattern", "", "pretokenization pattern overriding the default")
	workers := fs.Int("workers", 0, "worker goroutines (0 = GOMAXPROCS)")
	fs.Parse(args)

	if *corpusPath == "" {
		fatal("train: -corpus is required")
	}
	if *vocab <= 0 {
		fatal("train: -vocab is required")
	}
	algo, err := parseAlgorithm(*algoName)
	if err != nil {
		fatal("train: %v", err)
	}

	docs, err := readCorpus(*corpusPath)
	if err != nil {
		fatal("train: %v", err)
	}
	klog.V(1).Infof("read %d documents from %s", len(docs), *corpusPath)

	tok, err := tokenizers.New(algo)
	if err != nil {
		fatal("train: %v", err)
	}
	cfg := api.TrainConfig{
		TargetVocabSize:    *vocab,
		SpecialTokens:      splitList(*specials),
		UnknownToken:       *unknown,
		MinPairFrequency:   *minPair,
		MaxSubwordLength:   *maxSubword,
		PretokenizePattern: *pattern,
		Workers:            *workers,
	}

	start := time.Now()
	res, err := tok.Train(docs, cfg)
	if err != nil {
		fatal("train: %v", err)
	}
	elapsed := time.Since(start)

	if err := modelfile.Save(*out, tok.Export()); err != nil {
		fatal("train: %v", err)
	}
	printSummary(algo, res, *out, elapsed)
}

func runEncode(args []string) {
	fs := flag.NewFlagSet("encode", flag.ExitOnError)
	modelPath := fs.String("model", "", "trained model file (required)")
	workers := fs.Int("workers", 0, "worker goroutines (0 = GOMAXPROCS)")
	fs.Parse(args)

	tok := loadTokenizer(*modelPath)
	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()

	forEachBatch(func(lines []string) {
		seqs, err := tokenizers.EncodeBatch(tok, lines, *workers)
		if err != nil {
			w.Flush()
			fatal("encode: %v", err)
		}
		for _, seq := range seqs {
			for i, id := range seq {
				if i > 0 {
					w.WriteByte(' ')
				}
				w.WriteString(strconv.Itoa(id))
			}
			w.WriteByte('\n')
		}
	})
}

func runDecode(args []string) {
	fs := flag.NewFlagSet("decode", flag.ExitOnError)
	modelPath := fs.String("model", "", "trained model file (required)")
	workers := fs.Int("workers", 0, "worker goroutines (0 = GOMAXPROCS)")
	fs.Parse(args)

	tok := loadTokenizer(*modelPath)
	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()

	lineNo := 0
	forEachBatch(func(lines []string) {
		seqs := make([][]int, len(lines))
		for i, line := range lines {
			lineNo++
			fields := strings.Fields(line)
			ids := make([]int, len(fields))
			for j, f := range fields {
				id, err := strconv.Atoi(f)
				if err != nil {
					w.Flush()
					fatal("decode: line %d: %q is not an identifier", lineNo, f)
				}
				ids[j] = id
			}
			seqs[i] = ids
		}
		texts, err := tokenizers.DecodeBatch(tok, seqs, *workers)
		if err != nil {
			w.Flush()
			fatal("decode: %v", err)
		}
		for _, text := range texts {
			w.WriteString(text)
			w.WriteByte('\n')
		}
	})
}

func loadTokenizer(modelPath string) api.Tokenizer {
	if modelPath == "" {
		fatal("-model is required")
	}
	m, err := modelfile.Load(modelPath)
	if err != nil {
		fatal("%v", err)
	}
	tok, err := tokenizers.FromModel(m)
	if err != nil {
		fatal("%v", err)
	}
	return tok
}

// forEachBatch feeds stdin to fn in groups of at most batchLines lines.
func forEachBatch(fn func(lines []string)) {
	sc := bufio.NewScanner(os.Stdin)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<24)

	lines := make([]string, 0, batchLines)
	for sc.Scan() {
		lines = append(lines, sc.Text())
		if len(lines) == batchLines {
			fn(lines)
			lines = lines[:0]
		}
	}
	if err := sc.Err(); err != nil {
		fatal("reading stdin: %v", err)
	}
	if len(lines) > 0 {
		fn(lines)
	}
}

func readCorpus(path string) ([]string, error) {
	if strings.EqualFold(filepath.Ext(path), ".parquet") {
		return corpus.ParquetText(path)
	}
	return corpus.Lines(path)
}

func parseAlgorithm(name string) (api.Algorithm, error) {
	switch name {
	case "bpe":
		return api.BPE, nil
	case "byte_bpe", "bbpe":
		return api.ByteBPE, nil
	case "wordpiece":
		return api.WordPiece, nil
	case "unigram":
		return api.Unigram, nil
	}
	return 0, fmt.Errorf("unknown algorithm %q, want bpe, byte_bpe, wordpiece or unigram", name)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, tok := range strings.Split(s, ",") {
		if tok = strings.TrimSpace(tok); tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

func printSummary(algo api.Algorithm, res *api.TrainResult, path string, elapsed time.Duration) {
	label := lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(11)
	value := lipgloss.NewStyle().Bold(true)

	exhausted := value.Render("no")
	if res.Exhausted {
		exhausted = value.Foreground(lipgloss.Color("11")).Render("yes")
	}
	rows := []string{
		label.Render("algorithm") + value.Render(algo.String()),
		label.Render("vocabulary") + value.Render(strconv.Itoa(res.VocabSize)),
		label.Render("rules") + value.Render(strconv.Itoa(res.Rules)),
		label.Render("rounds") + value.Render(strconv.Itoa(res.Rounds)),
		label.Render("exhausted") + exhausted,
		label.Render("duration") + value.Render(elapsed.Round(time.Millisecond).String()),
		label.Render("model") + value.Render(path),
	}
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("63")).
		Padding(0, 1)
	fmt.Println(box.Render(lipgloss.JoinVertical(lipgloss.Left, rows...)))
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: segtok [klog flags] <command> [flags]

Commands:
  train   train a tokenizer on a corpus and save the model
  encode  read text lines on stdin, write id lines on stdout
  decode  read id lines on stdin, write text lines on stdout

Run 'segtok <command> -h' for the command's flags.
`)
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "segtok: "+format+"\n", args...)
	os.Exit(1)
}
