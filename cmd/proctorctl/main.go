// Command proctorctl prints the audit timeline and phone pairing state of
// exam assignments straight from the database.
//
//	proctorctl timeline <assignmentID>
//	proctorctl exam <examID>
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"recruit_proctor/internal/common"
	"recruit_proctor/internal/domain/model"
	"recruit_proctor/internal/domain/repository"
	"recruit_proctor/internal/platform/config"
	"recruit_proctor/internal/platform/database"
	"recruit_proctor/internal/platform/logger"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

var (
	threshold = flag.Duration("threshold", 0, "liveness threshold (defaults to LIVENESS_THRESHOLD_SECONDS)")
	utc       = flag.Bool("utc", false, "print timestamps in UTC")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: proctorctl [flags] timeline <assignmentID> | exam <examID>\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *threshold <= 0 {
		*threshold = cfg.LivenessThreshold
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.Connect(ctx, cfg.DBConnStr, logger.New("warn", ""))
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	switch cmd, id := flag.Arg(0), flag.Arg(1); cmd {
	case "timeline":
		err = timeline(ctx, db, id)
	case "exam":
		err = examAssignments(ctx, db, id)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func timeline(ctx context.Context, db *sql.DB, assignmentID string) error {
	assignments := repository.NewPgAssignmentRepository(db)
	sessions := repository.NewPgProctoringSessionRepository(db)
	logs := repository.NewPgProctorLogRepository(db)

	var (
		a       *model.ExamAssignment
		session *model.ProctoringSession
		entries []model.ProctorLogEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		a, err = assignments.FindAssignmentByID(gctx, assignmentID)
		return err
	})
	g.Go(func() error {
		s, err := sessions.FindSession(gctx, assignmentID)
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		session = s
		return err
	})
	g.Go(func() (err error) {
		entries, err = logs.ListByAssignment(gctx, assignmentID)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	color.Cyan("\n=== Assignment %s ===", a.ID)
	fmt.Printf("Exam:      %s\n", a.ExamID)
	fmt.Printf("Candidate: %s\n", a.CandidateID)
	fmt.Printf("Status:    %s\n", statusColor(a.Status)(string(a.Status)))
	printSession(session)

	color.Yellow("\nAudit Log")
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Time", "Event", "Actor", "Details"})
	table.SetAutoWrapText(false)
	for _, e := range entries {
		table.Append([]string{stamp(e.CreatedAt), e.EventType, e.Actor, string(e.Details)})
	}
	table.Render()
	return nil
}

func examAssignments(ctx context.Context, db *sql.DB, examID string) error {
	assignments := repository.NewPgAssignmentRepository(db)
	sessions := repository.NewPgProctoringSessionRepository(db)

	list, err := assignments.ListByExam(ctx, examID)
	if err != nil {
		return err
	}

	color.Yellow("\nAssignments for exam %s", examID)
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Assignment", "Candidate", "Status", "Phone", "Last Ping"})
	now := time.Now()
	for _, a := range list {
		phone, lastPing := "never paired", "-"
		s, err := sessions.FindSession(ctx, a.ID)
		switch {
		case errors.Is(err, common.ErrNotFound):
		case err != nil:
			return err
		default:
			phone = liveness(s, now)
			lastPing = stamp(s.LastPing)
		}
		table.Append([]string{a.ID, a.CandidateID, string(a.Status), phone, lastPing})
	}
	table.Render()
	return nil
}

func printSession(s *model.ProctoringSession) {
	if s == nil {
		fmt.Printf("Phone:     %s\n", color.HiBlackString("never paired"))
		return
	}
	state := liveness(s, time.Now())
	if s.IsLive(time.Now(), *threshold) {
		state = color.GreenString(state)
	} else {
		state = color.RedString(state)
	}
	fmt.Printf("Phone:     %s (last ping %s)\n", state, stamp(s.LastPing))
}

func liveness(s *model.ProctoringSession, now time.Time) string {
	switch {
	case s.IsLive(now, *threshold):
		return "live"
	case s.MobileConnected:
		return "stale"
	default:
		return "disconnected"
	}
}

func statusColor(s model.AssignmentStatus) func(format string, a ...interface{}) string {
	switch s {
	case model.AssignmentActive, model.AssignmentCompleted:
		return color.GreenString
	case model.AssignmentPaused:
		return color.YellowString
	case model.AssignmentTerminated, model.AssignmentCancelled:
		return color.RedString
	}
	return fmt.Sprintf
}

func stamp(t time.Time) string {
	if *utc {
		t = t.UTC()
	}
	return t.Format("2006-01-02 15:04:05 MST")
}
