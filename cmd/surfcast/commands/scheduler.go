package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mkalwtb/magicnorthseaweed/internal/scheduler"
	"github.com/mkalwtb/magicnorthseaweed/internal/scheduler/jobs"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run the background job scheduler",
	Long: `Start the scheduler daemon or manage its jobs.

Registered jobs:
- forecast-refresh: every 12 hours (replace the cache payload, run alerts)
- usage-report:     daily at 23:55 (log upstream credential usage)

Example:
  go run ./cmd/surfcast scheduler start
  go run ./cmd/surfcast scheduler run forecast-refresh`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the scheduler daemon",
		Long: `Start the scheduler and register all jobs.

The scheduler runs until interrupted with Ctrl+C.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "List registered jobs",
		RunE:  listSchedulerJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "Run one job immediately",
		Args:  cobra.ExactArgs(1),
		RunE:  runSchedulerJob,
	}
)

var (
	refreshSchedule string
	usageSchedule   string
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)

	schedulerCmd.PersistentFlags().StringVar(&refreshSchedule, "refresh-schedule",
		"0 0 */12 * * *", "cron schedule of the forecast refresh job")
	schedulerCmd.PersistentFlags().StringVar(&usageSchedule, "usage-schedule",
		"0 55 23 * * *", "cron schedule of the usage report job")
}

// buildScheduler wires the scheduler with all jobs against one app graph.
func buildScheduler(app *app) (*scheduler.Scheduler, error) {
	sched := scheduler.New(app.log.Zerolog())

	refreshJob := jobs.NewRefreshJob(app.cache, app.alerts, refreshSchedule, app.log.Zerolog())
	if err := sched.AddJob(refreshJob); err != nil {
		return nil, fmt.Errorf("register refresh job: %w", err)
	}

	usageJob := jobs.NewUsageJob(app.keyring, usageSchedule, app.log.Zerolog())
	if err := sched.AddJob(usageJob); err != nil {
		return nil, fmt.Errorf("register usage job: %w", err)
	}

	return sched, nil
}

func runScheduler(cmd *cobra.Command, args []string) error {
	app, cleanup, err := initApp()
	if err != nil {
		return err
	}
	defer cleanup()

	sched, err := buildScheduler(app)
	if err != nil {
		return err
	}

	sched.Start()
	defer sched.Stop()

	fmt.Println("Scheduler started. Registered jobs:")
	for _, name := range sched.Jobs() {
		fmt.Printf("  - %s\n", name)
	}
	fmt.Println("Press Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	return nil
}

func listSchedulerJobs(cmd *cobra.Command, args []string) error {
	app, cleanup, err := initApp()
	if err != nil {
		return err
	}
	defer cleanup()

	sched, err := buildScheduler(app)
	if err != nil {
		return err
	}

	for _, name := range sched.Jobs() {
		fmt.Println(name)
	}
	return nil
}

func runSchedulerJob(cmd *cobra.Command, args []string) error {
	app, cleanup, err := initApp()
	if err != nil {
		return err
	}
	defer cleanup()

	sched, err := buildScheduler(app)
	if err != nil {
		return err
	}

	jobName := args[0]
	fmt.Printf("Running job %s...\n", jobName)

	// Run synchronously so the process does not exit under the job.
	switch jobName {
	case "forecast-refresh":
		err = jobs.NewRefreshJob(app.cache, app.alerts, refreshSchedule, app.log.Zerolog()).Run(cmd.Context())
	case "usage-report":
		err = jobs.NewUsageJob(app.keyring, usageSchedule, app.log.Zerolog()).Run(cmd.Context())
	default:
		return fmt.Errorf("unknown job %s (have: %v)", jobName, sched.Jobs())
	}
	if err != nil {
		return fmt.Errorf("job %s: %w", jobName, err)
	}

	fmt.Println("Job completed")
	return nil
}
