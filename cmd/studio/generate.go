package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"studio/internal/domain"
	"studio/internal/jobrunner"
	"studio/internal/mask"
	"studio/internal/session"
	"studio/internal/workflow"
)

type generateFlags struct {
	prompt      string
	negative    string
	style       string
	strength    float64
	steps       int
	guidance    float64
	width       int
	height      int
	batch       int
	seed        int64
	image       string
	strokes     string
	reference   string
	redux       float64
	downsample  int
	refGuidance float64
	jsonOut     bool
}

var genFlags generateFlags

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Run one generation against the backend and print the results",
	RunE:  runGenerate,
}

func init() {
	f := generateCmd.Flags()
	f.StringVar(&genFlags.prompt, "prompt", "", "positive prompt")
	f.StringVar(&genFlags.negative, "negative", "", "negative prompt")
	f.StringVar(&genFlags.style, "style", "", "style model id (catalog default when empty)")
	f.Float64Var(&genFlags.strength, "style-strength", 0, "style adapter strength, 0..2")
	f.IntVar(&genFlags.steps, "steps", 0, "sampling steps")
	f.Float64Var(&genFlags.guidance, "guidance", 0, "guidance scale")
	f.IntVar(&genFlags.width, "width", 0, "output width in pixels")
	f.IntVar(&genFlags.height, "height", 0, "output height in pixels")
	f.IntVar(&genFlags.batch, "batch", 0, "images per job")
	f.Int64Var(&genFlags.seed, "seed", -1, "sampling seed; negative draws one")
	f.StringVar(&genFlags.image, "image", "", "source image for image-to-image (PNG or JPEG)")
	f.StringVar(&genFlags.strokes, "strokes", "", "JSON file of mask strokes painted over --image")
	f.StringVar(&genFlags.reference, "reference", "", "already uploaded reference asset ref")
	f.Float64Var(&genFlags.redux, "redux-strength", 0, "reference influence")
	f.IntVar(&genFlags.downsample, "downsampling", 0, "reference downsampling factor")
	f.Float64Var(&genFlags.refGuidance, "reference-guidance", 0, "reference guidance")
	f.BoolVar(&genFlags.jsonOut, "json", false, "print the result as JSON")
	_ = generateCmd.MarkFlagRequired("prompt")
	rootCmd.AddCommand(generateCmd)
}

// params maps the flags onto generation parameters. Image-to-image is
// selected by --image or --reference. Strengths and guidances are passed on
// only when their flag was set, since zero is a meaningful value.
func (f generateFlags) params(changed func(name string) bool) (domain.GenerationParameters, error) {
	optional := func(name string, v float64) *float64 {
		if !changed(name) {
			return nil
		}
		return domain.Float(v)
	}
	p := domain.GenerationParameters{
		Prompt:         f.prompt,
		NegativePrompt: f.negative,
		StyleModelID:   f.style,
		StyleStrength:  optional("style-strength", f.strength),
		Steps:          f.steps,
		GuidanceScale:  optional("guidance", f.guidance),
		Width:          f.width,
		Height:         f.height,
		BatchSize:      f.batch,
		Mode:           domain.ModeTextToImage,
	}
	if f.seed >= 0 {
		if f.seed > int64(^uint32(0)) {
			return p, fmt.Errorf("--seed must fit in 32 bits")
		}
		seed := uint32(f.seed)
		p.Seed = &seed
	}
	if f.image != "" && f.reference != "" {
		return p, fmt.Errorf("--image and --reference are mutually exclusive")
	}
	if f.strokes != "" && f.image == "" {
		return p, fmt.Errorf("--strokes needs --image")
	}
	if f.image != "" || f.reference != "" {
		p.Mode = domain.ModeImageToImage
		p.ImageToImage = &domain.ImageToImage{
			ReferenceImageAssetRef: f.reference,
			ReduxStrength:          optional("redux-strength", f.redux),
			DownsamplingFactor:     f.downsample,
			Guidance:               optional("reference-guidance", f.refGuidance),
		}
	}
	return p, nil
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	params, err := genFlags.params(cmd.Flags().Changed)
	if err != nil {
		return err
	}

	svc, err := loadServices(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	stderr := cmd.ErrOrStderr()
	sess, err := session.New(session.Options{
		Uploader: svc.client,
		Fetcher:  svc.client,
		Builder:  workflow.NewBuilder(svc.catalog),
		Runner: svc.runner.WithProgress(func(p jobrunner.Progress) {
			fmt.Fprintf(stderr, "[%3d%%] %s %s\n", p.Percent, p.Status, p.Stage)
		}),
		Cache:        svc.store,
		Gallery:      svc.gallery,
		Logger:       &svc.logger,
		DefaultStyle: svc.catalog.Default,
	})
	if err != nil {
		return err
	}

	if genFlags.image != "" {
		if err := paintSurface(sess.Surface(), genFlags.image, genFlags.strokes); err != nil {
			sess.Close()
			return err
		}
	}

	res, genErr := sess.Generate(ctx, params)
	sess.Close()
	for d := range sess.Diagnostics() {
		fmt.Fprintf(stderr, "gallery: %d records of job %s not saved: %v\n", d.Records, d.JobID, d.Err)
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(stderr, "warning: %s\n", w)
	}
	if genErr != nil {
		return genErr
	}

	out := cmd.OutOrStdout()
	if genFlags.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	renderRecords(out, res)
	return nil
}

func paintSurface(surface *mask.Surface, imagePath, strokesPath string) error {
	raw, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	img, err := mask.DecodeImage(raw)
	if err != nil {
		return err
	}
	surface.Bind(img)
	if strokesPath == "" {
		return nil
	}
	data, err := os.ReadFile(strokesPath)
	if err != nil {
		return fmt.Errorf("read strokes: %w", err)
	}
	var strokes []mask.Stroke
	if err := json.Unmarshal(data, &strokes); err != nil {
		return fmt.Errorf("decode strokes: %w", err)
	}
	for i, st := range strokes {
		if err := surface.ApplyStroke(st); err != nil {
			return fmt.Errorf("stroke %d: %w", i, err)
		}
	}
	return nil
}

func renderRecords(w io.Writer, res session.Result) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"#", "Image URL", "Cached", "Seed"})
	for i, rec := range res.Records {
		seed := ""
		if rec.Parameters.Seed != nil {
			seed = fmt.Sprint(*rec.Parameters.Seed)
		}
		tw.AppendRow(table.Row{i + 1, rec.ImageURL, rec.LocalCacheRef, seed})
	}
	tw.AppendFooter(table.Row{"", "job " + res.Job.JobID, string(res.Job.Status), ""})
	tw.Render()
}
