package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/fyerfyer/news-classifier/config"
	"github.com/fyerfyer/news-classifier/internal/app"
	"github.com/fyerfyer/news-classifier/internal/database"
	"github.com/fyerfyer/news-classifier/internal/dataset"
	"github.com/fyerfyer/news-classifier/internal/pipeline"
	"github.com/fyerfyer/news-classifier/internal/services"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// 命令行参数
type options struct {
	ConfigFile string  // 配置文件路径
	CSVPath    string  // 语料CSV路径
	Separator  string  // CSV分隔符
	TestSize   float64 // 测试集比例
	Seed       int64   // 切分随机种子
	Force      bool    // 已有制品时是否覆盖
	LogLevel   string  // 日志级别
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: Failed to load .env file: %v", err)
	}

	opts := parseFlags()
	if err := run(context.Background(), opts, os.Stdout); err != nil {
		log.Fatalf("Bootstrap failed: %v", err)
	}
}

// parseFlags 解析命令行参数
func parseFlags() options {
	opts := options{}

	flag.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to config file")
	flag.StringVar(&opts.CSVPath, "csv", "", "Path to the labeled corpus CSV (required)")
	flag.StringVar(&opts.Separator, "sep", string(dataset.DefaultSeparator), "CSV field separator")
	flag.Float64Var(&opts.TestSize, "test-size", 0.2, "Fraction of rows held out for evaluation")
	flag.Int64Var(&opts.Seed, "seed", 42, "Random seed for the train/test split")
	flag.BoolVar(&opts.Force, "force", false, "Bootstrap even if a model artifact already exists")
	flag.StringVar(&opts.LogLevel, "log-level", "", "Log level debug/info/warn/error (overrides config)")

	flag.Parse()
	return opts
}

// run 读取语料、切分、训练并保存首个模型版本
func run(ctx context.Context, opts options, out io.Writer) error {
	if opts.CSVPath == "" {
		return errors.New("-csv is required")
	}
	if len([]rune(opts.Separator)) != 1 {
		return fmt.Errorf("-sep must be a single character, got %q", opts.Separator)
	}

	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := app.NewLogger(cfg.Log, opts.LogLevel)

	runs, err := app.SetupRunRepository(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer database.Close()

	blobStorage, err := app.NewStorage(cfg)
	if err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}
	store := app.NewArtifactStore(blobStorage, cfg, logger)

	p, err := app.NewPipeline(cfg, logger)
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}

	// 读取并清理语料
	file, err := os.Open(opts.CSVPath)
	if err != nil {
		return fmt.Errorf("open corpus: %w", err)
	}
	defer file.Close()

	table, err := dataset.ReadCSV(file, []rune(opts.Separator)[0])
	if err != nil {
		return err
	}
	docs, report := dataset.Profile(table)
	logger.WithFields(logrus.Fields{
		"path":               opts.CSVPath,
		"input_rows":         report.InputRows,
		"output_rows":        report.OutputRows,
		"dropped_missing":    report.DroppedMissing,
		"dropped_duplicates": report.DroppedDuplicates,
		"dropped_columns":    report.DroppedColumns,
	}).Info("Corpus profiled")
	if len(docs) == 0 {
		return fmt.Errorf("corpus %s contains no usable rows (missing columns: %v)", opts.CSVPath, report.MissingColumns)
	}

	train, test, err := dataset.TrainTestSplit(docs, opts.TestSize, opts.Seed)
	if err != nil {
		return err
	}

	svc := services.NewClassifierService(store,
		services.WithLogger(logger),
		services.WithRunRepository(runs),
	)
	outcome, err := svc.Bootstrap(ctx, p, train, test, opts.Force)
	if err != nil {
		return err
	}

	printReport(out, opts.CSVPath, report, len(train), len(test), outcome)
	return nil
}

// printReport 输出引导训练报告
func printReport(out io.Writer, path string, report dataset.ProfileReport, nTrain, nTest int, outcome services.BootstrapOutcome) {
	fmt.Fprintf(out, "Corpus:   %s\n", path)
	fmt.Fprintf(out, "Rows:     %d read, %d dropped (missing), %d dropped (duplicate title), %d kept\n",
		report.InputRows, report.DroppedMissing, report.DroppedDuplicates, report.OutputRows)
	fmt.Fprintf(out, "Split:    %d train / %d test\n", nTrain, nTest)
	fmt.Fprintf(out, "Version:  %d\n", outcome.Version)
	fmt.Fprintf(out, "Duration: %s\n\n", outcome.Duration.Round(time.Millisecond))

	printMetrics(out, "Training (batch self-check)", outcome.Training)
	if outcome.Holdout != nil {
		printMetrics(out, "Held-out evaluation", *outcome.Holdout)
	}
}

// printMetrics 以表格形式输出评估指标
func printMetrics(out io.Writer, title string, m pipeline.Metrics) {
	fmt.Fprintf(out, "%s: %d samples\n", title, m.Samples)
	fmt.Fprintf(out, "  accuracy %.4f  precision %.4f  recall %.4f  f1 %.4f\n", m.Accuracy, m.Precision, m.Recall, m.F1)

	classes := make([]string, 0, len(m.PerClass))
	for c := range m.PerClass {
		classes = append(classes, c)
	}
	sort.Strings(classes)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  class\tprecision\trecall\tf1\tsupport")
	for _, c := range classes {
		cm := m.PerClass[c]
		fmt.Fprintf(tw, "  %s\t%.4f\t%.4f\t%.4f\t%d\n", c, cm.Precision, cm.Recall, cm.F1, cm.Support)
	}
	tw.Flush()
	fmt.Fprintln(out)
}
