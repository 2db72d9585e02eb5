package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/vdavid/mailvault/internal/alert"
	"github.com/vdavid/mailvault/internal/config"
	"github.com/vdavid/mailvault/internal/imap"
	"github.com/vdavid/mailvault/internal/mail"
	"github.com/vdavid/mailvault/internal/notify"
	"github.com/vdavid/mailvault/internal/pipeline"
	"github.com/vdavid/mailvault/internal/sink"
	"github.com/vdavid/mailvault/internal/store"
)

func main() {
	var (
		server   = flag.String("server", "", "IMAP server address (host:port)")
		username = flag.String("username", "", "mailbox account name")
		password = flag.String("password", "", "mailbox password")
		useTLS   = flag.Bool("tls", true, "connect with TLS")
		boxes    = flag.String("boxes", "INBOX,Junk", "comma-separated folders to watch")
		threads  = flag.Int("threads", pipeline.DefaultWorkerCount, "number of download workers")
		poll     = flag.Duration("poll", pipeline.DefaultPollInterval, "time between scan cycle starts")
		useIdle  = flag.Bool("idle", false, "hold an IDLE connection to pick up mail between scans")

		fsDir         = flag.String("fs-dir", "", "store artifacts under this directory")
		s3Bucket      = flag.String("s3-bucket", "", "store artifacts in this object storage bucket")
		archiveSource = flag.String("archive-source", "", "store artifacts in the archive database under this source tag")
	)
	flag.Parse()

	if *server == "" || *username == "" || *password == "" {
		log.Fatalf("-server, -username and -password are required")
	}
	if *threads < 1 {
		log.Fatalf("-threads must be at least 1")
	}
	if *poll <= 0 {
		log.Fatalf("-poll must be positive")
	}
	if *fsDir == "" && *s3Bucket == "" && *archiveSource == "" {
		log.Fatalf("at least one of -fs-dir, -s3-bucket or -archive-source is required")
	}

	folders := splitFolders(*boxes)
	if len(folders) == 0 {
		log.Fatalf("-boxes must name at least one folder")
	}

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	recorder, closeStores := openStores(ctx, cfg)
	defer closeStores()

	sinks := openSinks(ctx, cfg, *fsDir, *s3Bucket, *archiveSource)

	user := mail.AccountUser(*username)

	producerBox, err := imap.DialMailbox(*server, *username, *password, *useTLS)
	if err != nil {
		log.Fatalf("Failed to connect producer to %s: %v", *server, err)
	}
	defer producerBox.Logout()

	producer := pipeline.NewProducer(producerBox, recorder, user, folders)
	producer.SetPollInterval(*poll)

	var publisher *notify.RedisPublisher
	if cfg.RedisAddr != "" {
		publisher, err = notify.NewRedisPublisher(ctx, cfg.RedisAddr, cfg.RedisPassword, 0, cfg.RedisChannel)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer publisher.Close()
	}

	var alerter *alert.Mailer
	if cfg.AlertSMTPServer != "" {
		alerter = alert.NewMailer(alert.Config{
			Server:   cfg.AlertSMTPServer,
			Username: cfg.AlertUsername,
			Password: cfg.AlertPassword,
			From:     cfg.AlertFrom,
			To:       strings.Split(cfg.AlertTo, ","),
		})
	}

	workers := make([]*pipeline.Worker, 0, *threads)
	for i := 0; i < *threads; i++ {
		workerBox, err := imap.DialMailbox(*server, *username, *password, *useTLS)
		if err != nil {
			log.Fatalf("Failed to connect worker %d to %s: %v", i, *server, err)
		}
		defer workerBox.Logout()

		w := pipeline.NewWorker(workerBox, *username, recorder, sinks)
		if publisher != nil {
			w.AddObserver(publisher)
		}
		if alerter != nil {
			w.SetAlerter(alerter)
		}
		workers = append(workers, w)
	}

	if *useIdle {
		idleBox, err := imap.DialMailbox(*server, *username, *password, *useTLS)
		if err != nil {
			log.Fatalf("Failed to connect IDLE watcher to %s: %v", *server, err)
		}
		defer idleBox.Logout()

		watcher := pipeline.NewIdleWatcher(idleBox, folders[0])
		producer.SetNudge(watcher.Nudge())
		go func() {
			if err := watcher.Run(ctx); err != nil {
				log.Printf("IDLE watcher stopped: %v", err)
			}
		}()
	}

	log.Printf("Watching %s for %s with %d workers", strings.Join(folders, ", "), user, *threads)
	if err := pipeline.Run(ctx, producer, workers, pipeline.DefaultQueueCapacity); err != nil {
		log.Fatalf("Pipeline failed: %v", err)
	}
	log.Printf("Shut down cleanly")
}

// openStores opens the local database and, when configured, the remote
// mirror. The returned cleanup closes both.
func openStores(ctx context.Context, cfg *config.Config) (*store.Recorder, func()) {
	local, err := store.OpenSQLite(ctx, cfg.SQLitePath)
	if err != nil {
		log.Fatalf("Failed to open local database: %v", err)
	}

	var remote store.Backend
	if cfg.MirrorEnabled() {
		mirror, err := store.OpenMySQL(ctx, cfg.GetMirrorDSN())
		if err != nil {
			log.Fatalf("Failed to open mirror database: %v", err)
		}
		remote = mirror
	}

	cleanup := func() {
		if err := local.Close(); err != nil {
			log.Printf("Failed to close local database: %v", err)
		}
		if remote != nil {
			if err := remote.Close(); err != nil {
				log.Printf("Failed to close mirror database: %v", err)
			}
		}
	}
	return store.NewRecorder(local, remote), cleanup
}

func openSinks(ctx context.Context, cfg *config.Config, fsDir, s3Bucket, archiveSource string) []sink.Sink {
	var sinks []sink.Sink

	if fsDir != "" {
		fs, err := sink.NewFilesystem(fsDir)
		if err != nil {
			log.Fatalf("Failed to set up filesystem sink: %v", err)
		}
		sinks = append(sinks, fs)
	}
	if s3Bucket != "" {
		if cfg.S3Endpoint == "" {
			log.Fatalf("MAILVAULT_S3_ENDPOINT is required for -s3-bucket")
		}
		objectStore, err := sink.NewObjectStore(ctx, sink.ObjectStoreConfig{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    s3Bucket,
			UseTLS:    cfg.S3UseTLS,
		})
		if err != nil {
			log.Fatalf("Failed to set up object storage sink: %v", err)
		}
		sinks = append(sinks, objectStore)
	}
	if archiveSource != "" {
		if cfg.ArchiveDBURL == "" {
			log.Fatalf("MAILVAULT_ARCHIVE_DB_URL is required for -archive-source")
		}
		archive, err := sink.NewArchive(ctx, cfg.ArchiveDBURL, archiveSource)
		if err != nil {
			log.Fatalf("Failed to set up archive sink: %v", err)
		}
		sinks = append(sinks, archive)
	}

	return sinks
}

func splitFolders(value string) []string {
	var folders []string
	for _, folder := range strings.Split(value, ",") {
		folder = strings.TrimSpace(folder)
		if folder != "" {
			folders = append(folders, folder)
		}
	}
	return folders
}
