// Command bulkctl submits bulk download jobs and watches them to completion.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const usage = `usage:
  bulkctl submit [-watch] [-quality best] [-format mp4] [-platform auto] -url URL [-url URL ...]
  bulkctl watch <jobId>

environment:
  BULKCTL_API_URL   API base URL (default http://localhost:8000)
  BULKCTL_TOKEN     bearer token sent with every request`

type settings struct {
	APIURL string
	Token  string
}

func loadSettings() settings {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("BULKCTL")
	v.AutomaticEnv()
	v.SetDefault("api_url", "http://localhost:8000")

	return settings{
		APIURL: strings.TrimRight(v.GetString("api_url"), "/"),
		Token:  v.GetString("token"),
	}
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	api := newAPIClient(loadSettings())

	var err error
	switch os.Args[1] {
	case "submit":
		err = runSubmit(api, os.Args[2:])
	case "watch":
		err = runWatch(api, os.Args[2:])
	case "-h", "--help", "help":
		fmt.Println(usage)
		return
	default:
		err = fmt.Errorf("unknown command %q", os.Args[1])
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
		os.Exit(1)
	}
}

type urlList []string

func (u *urlList) String() string { return strings.Join(*u, ",") }

func (u *urlList) Set(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return errors.New("empty url")
	}
	*u = append(*u, value)
	return nil
}

func runSubmit(api *apiClient, args []string) error {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	var urls urlList
	fs.Var(&urls, "url", "source URL (repeatable)")
	quality := fs.String("quality", "", "quality preference (best, 1080p, 720p, 320k, ...)")
	format := fs.String("format", "", "format preference (mp4, webm, mp3, m4a)")
	platform := fs.String("platform", "", "platform hint (auto, youtube, tiktok, ...)")
	watch := fs.Bool("watch", false, "watch the job after submitting")
	if err := fs.Parse(args); err != nil {
		return err
	}
	urls = append(urls, fs.Args()...)
	if len(urls) == 0 {
		return errors.New("at least one -url is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := api.Submit(ctx, submitRequest{
		URLs:     urls,
		Quality:  *quality,
		Format:   *format,
		Platform: *platform,
	})
	if err != nil {
		return err
	}

	fmt.Println(okStyle.Render(resp.Message))
	fmt.Printf("job %s  charged %d  remaining %d\n", resp.JobID, resp.CreditsDeducted, resp.RemainingCredits)

	if !*watch {
		return nil
	}
	return watchJob(api, resp.JobID)
}

func runWatch(api *apiClient, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("watch takes exactly one job id")
	}
	return watchJob(api, fs.Arg(0))
}
