package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/schollz/progressbar/v3"

	"fermata/cmd"
	"fermata/config"
	"fermata/services"
	"fermata/types"
)

func main() {
	var (
		server       bool
		transcodeAll bool
		port         int
		configPath   string
	)

	flag.BoolVar(&server, "server", false, "Start in web server mode")
	flag.BoolVar(&transcodeAll, "transcode-all", false, "Transcode every episode in the library, then exit")
	flag.IntVar(&port, "port", 8080, "Port for web server mode")
	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.Parse()

	if transcodeAll {
		if err := runTranscodeAll(configPath); err != nil {
			log.Fatalf("Error: %s", err)
		}
		return
	}

	if server {
		cmd.StartWebServer(port, configPath)
		return
	}

	flag.Usage()
}

// runTranscodeAll converts the whole library in the foreground. Useful for
// warming the cache before first serving a library.
func runTranscodeAll(configPath string) error {
	cfg, err := config.NewStore(configPath)
	if err != nil {
		return err
	}
	settings := cfg.Snapshot()

	if err := os.MkdirAll(settings.CachePath, 0755); err != nil {
		return err
	}

	cache := services.NewCacheStore(settings.CachePath)
	backend := services.NewFFmpegBackend(settings.FFmpegPath)
	pipeline := services.NewEncodingPipeline(cache, backend)
	library := services.NewLibraryService(cfg)

	books, err := library.ScanBooks()
	if err != nil {
		return err
	}

	var pending []types.TranscodeTask
	for _, book := range books {
		for _, season := range book.Seasons {
			for _, ep := range season.Episodes {
				if !ep.NeedsTranscode {
					continue
				}
				ref := types.EpisodeRef{BookID: book.ID, SeasonID: season.ID, EpisodeID: ep.ID}
				if cache.IsValid(ref) {
					continue
				}
				pending = append(pending, types.TranscodeTask{SourcePath: ep.Path, Ref: ref})
			}
		}
	}

	if len(pending) == 0 {
		log.Println("Nothing to transcode; cache is up to date")
		return nil
	}

	log.Printf("Transcoding %d episode(s)", len(pending))
	bar := progressbar.Default(int64(len(pending)))

	failed := 0
	for _, task := range pending {
		if _, err := pipeline.EnsureTranscoded(context.Background(), task.SourcePath, task.Ref); err != nil {
			log.Printf("Transcode of %s failed: %v", task.Ref, err)
			failed++
		}
		bar.Add(1)
	}

	if failed > 0 {
		log.Printf("Done with %d failure(s)", failed)
	} else {
		log.Println("Done")
	}
	return nil
}
