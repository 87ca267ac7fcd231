package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/dialectatlas/tonelab/internal/cli"
	"github.com/dialectatlas/tonelab/internal/config"
	"github.com/dialectatlas/tonelab/internal/job"
	"github.com/dialectatlas/tonelab/internal/report"
	"github.com/dialectatlas/tonelab/internal/service"
	"github.com/dialectatlas/tonelab/internal/ui"
)

var (
	version = "0.0.1"
)

type versionFlag bool

func (versionFlag) BeforeApply(app *kong.Kong) error {
	cli.PrintVersion(version)
	app.Exit(0)
	return nil
}

// CLI defines the command-line interface
type CLI struct {
	Version versionFlag `short:"v" help:"Show version information"`
	Config  string      `short:"c" type:"path" help:"Path to YAML config file (optional)"`
	Logs    bool        `help:"Save detailed analysis logs"`

	Analyze      AnalyzeCmd      `cmd:"" help:"Analyze a recording and print the report"`
	Capabilities CapabilitiesCmd `cmd:"" help:"Print supported formats, modules and limits"`
	Sweep        SweepCmd        `cmd:"" help:"Run one retention sweep and exit"`
}

// AnalyzeCmd uploads one recording, runs an analysis job with a live
// monitor and prints the result.
type AnalyzeCmd struct {
	File         string   `arg:"" name:"file" help:"Audio file to analyze" type:"existingfile"`
	Mode         string   `default:"single" enum:"single,continuous" help:"Analysis mode"`
	Modules      []string `default:"basic,pitch,intensity,segments" help:"Analysis modules to run"`
	View         string   `default:"full" enum:"full,summary,timeseries" help:"Result view"`
	DownsampleHz float64  `default:"100" help:"Contour downsample rate in Hz (0 keeps the native step)"`
	JSON         bool     `help:"Print the raw result JSON instead of the report"`
	Keep         bool     `help:"Keep the upload after the job finishes"`
}

func (c *AnalyzeCmd) Run(root *CLI) error {
	svc, err := openService(root)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx := context.Background()
	svc.Start(ctx)

	data, err := os.ReadFile(c.File)
	if err != nil {
		return fmt.Errorf("read %s: %w", c.File, err)
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(c.File)), ".")

	u, err := svc.CreateUpload(ctx, service.CreateUploadRequest{
		Data:      data,
		Format:    format,
		Normalize: true,
	})
	if err != nil {
		return err
	}
	if c.Keep {
		cli.PrintKV("Upload", u.ID)
	} else {
		defer svc.DeleteUpload(u.ID)
	}

	modules := make([]job.ModuleRequest, len(c.Modules))
	for i, name := range c.Modules {
		modules[i] = job.ModuleRequest{Name: name}
	}
	j, err := svc.CreateJob(ctx, service.CreateJobRequest{
		UploadID: u.ID,
		Mode:     c.Mode,
		Modules:  modules,
		Output: &job.OutputOptions{
			View:              job.View(c.View),
			IncludeTimeseries: true,
			DownsampleHz:      c.DownsampleHz,
		},
	})
	if err != nil {
		return err
	}

	model := ui.NewModel(j.ID, j.ModuleNames())
	p := tea.NewProgram(model)

	go pollStatus(svc, j.ID, model.StatusChan)

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("ui: %w", err)
	}
	final := finalModel.(ui.Model)

	if !final.Done {
		// User quit while the job was still running.
		svc.CancelJob(j.ID)
		return nil
	}
	if final.Err != nil {
		return final.Err
	}
	if final.Status == job.StatusCancelled {
		return nil
	}

	if c.JSON {
		projected, err := svc.FetchResult(j.ID, c.View)
		if err != nil {
			return err
		}
		return printJSON(projected)
	}

	full, err := svc.FetchResult(j.ID, string(job.ViewFull))
	if err != nil {
		return err
	}
	report.Render(os.Stdout, full.(*job.Result))
	return nil
}

// pollStatus feeds progress snapshots to the monitor until the job
// reaches a terminal state.
func pollStatus(svc *service.Service, jobID string, ch chan tea.Msg) {
	ticker := time.NewTicker(150 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		st, err := svc.GetJobStatus(jobID)
		if err != nil {
			ch <- ui.JobDoneMsg{Err: err}
			return
		}
		if st.Status.Terminal() {
			var jobErr error
			if st.Error != nil {
				jobErr = st.Error
			}
			ch <- ui.JobDoneMsg{Status: st, Err: jobErr}
			return
		}
		ch <- ui.StatusMsg{Status: st}
	}
}

// CapabilitiesCmd prints the deployment capabilities as JSON.
type CapabilitiesCmd struct{}

func (c *CapabilitiesCmd) Run(root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return err
	}
	svc, err := service.New(cfg, service.Options{
		InMemoryStore: true,
		Logger:        discardLogger(),
	})
	if err != nil {
		return err
	}
	defer svc.Close()
	return printJSON(svc.Capabilities())
}

// SweepCmd runs one retention sweep against the data directory.
type SweepCmd struct{}

func (c *SweepCmd) Run(root *CLI) error {
	svc, err := openService(root)
	if err != nil {
		return err
	}
	defer svc.Close()
	svc.Sweeper().Sweep(time.Now().UTC())
	fmt.Println("sweep complete")
	return nil
}

func openService(root *CLI) (*service.Service, error) {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return nil, err
	}
	logger := discardLogger()
	if root.Logs {
		f, err := os.Create("tonelab-debug.log")
		if err != nil {
			return nil, fmt.Errorf("create log file: %w", err)
		}
		logger = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return service.New(cfg, service.Options{Logger: logger})
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func main() {
	cliArgs := &CLI{}
	ctx := kong.Parse(cliArgs,
		kong.Name("tonelab"),
		kong.Description("Acoustic analysis for tonal-language fieldwork"),
		kong.UsageOnError(),
		kong.Vars{
			"version": version,
		},
		kong.Help(cli.StyledHelpPrinter(kong.HelpOptions{Compact: true})),
	)

	if err := ctx.Run(cliArgs); err != nil {
		cli.PrintError(err.Error())
		os.Exit(1)
	}
}
