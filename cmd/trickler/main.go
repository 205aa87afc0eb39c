// cmd/trickler is the application image: it wires the hal capability
// drivers to the Charge State Machine and starts the four long-lived
// tasks (Control, Render, Motor, Network) -- flat device-config
// literals, one constructor call per driver, one goroutine per task.
package main

import (
	"encoding/json"
	"machine"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opentrickler/trickler-core/charge"
	"github.com/opentrickler/trickler-core/control"
	"github.com/opentrickler/trickler-core/core"
	"github.com/opentrickler/trickler-core/hal"
	"github.com/opentrickler/trickler-core/internal/boardflash"
	"github.com/opentrickler/trickler-core/internal/ts"
	"github.com/opentrickler/trickler-core/model"
	"github.com/opentrickler/trickler-core/restadapter"
	"github.com/opentrickler/trickler-core/sampler"
	"github.com/opentrickler/trickler-core/store"
	"github.com/opentrickler/trickler-core/tuner"
	"github.com/opentrickler/trickler-core/updater"
)

type cpuRebooter struct{}

func (cpuRebooter) Reboot() { machine.CPUReset() }

func main() {
	logger := ts.New()

	flashChip := boardflash.Open()
	flashMu := &sync.Mutex{}

	cfg := store.New(flashChip, boardflash.ConfigLayout, flashMu)
	banks := updater.NewBankStore(flashChip, boardflash.BankStoreLayout, flashMu)

	errorLog := core.NewLog()

	u, err := updater.NewUpdater(banks, cpuRebooter{})
	if err != nil {
		logger.Println(time.Now(), "updater init failed:", err.Error())
	}
	if meta, ok := banks.LoadMetadata(); ok && meta.RollbackOccurred {
		errorLog.Record(core.KindBootCountExceeded, "previous boot rolled back to bank "+meta.ActiveBank.String(), sampler.NowMS())
	}

	machine.UART1.Configure(machine.UARTConfig{BaudRate: 9600})
	scale := hal.NewUARTScale(machine.UART1)

	coarse := hal.NewTricklerMotor([4]machine.Pin{machine.GP2, machine.GP3, machine.GP4, machine.GP5}, 200, 0.1, 5.0)
	fine := hal.NewTricklerMotor([4]machine.Pin{machine.GP6, machine.GP7, machine.GP8, machine.GP9}, 200, 0.01, 0.5)
	motorDriver := &hal.TricklerPair{Coarse: coarse, Fine: fine}

	gate, err := hal.NewServoGate(machine.PWM3, machine.GP22, 70, 30, 250*time.Millisecond)
	if err != nil {
		logger.Println(time.Now(), "gate init failed, continuing without a gate:", err.Error())
	}
	var gateCap hal.Gate = hal.NoGate{}
	if gate != nil {
		gateCap = gate
	}

	led := hal.NewRGBStatusLED(machine.GP10,
		[3]hal.PWM{machine.PWM1, machine.PWM1, machine.PWM1},
		[3]hal.PWM{machine.PWM2, machine.PWM2, machine.PWM2},
		[3]uint8{0, 1, 2}, [3]uint8{0, 1, 2})

	input := hal.NewInputQueue(8)

	motorQueue := control.NewMotorQueue()
	queuedMotor := control.NewQueuedMotor(motorQueue, motorDriver)

	profiles := cfg.LoadProfiles()
	profileIndex := selectedProfileIndex(profiles)
	history := tuner.NewHistory()
	for _, e := range cfg.LoadTuningHistory() {
		if e.TotalTimeMS != 0 {
			history.Record(e)
		}
	}
	session := tuner.NewSession(history)

	s := sampler.New(scale)
	machineCSM := charge.New(s, queuedMotor, gateCap, led, input, session, historySink{history: history}, errorLog)
	machineCSM.Profile = profiles[profileIndex]
	machineCSM.ProfileIndex = profileIndex
	machineCSM.Config = cfg.LoadChargeConfig()

	tasks := control.NewTasks(machineCSM, motorQueue, profiles, session)
	tasks.AbortInput = input

	go control.RunMotorTask(motorQueue, motorDriver, tasks.Done())
	go tasks.RunControlTask()
	go tasks.RunRenderTask(func(snap control.Snapshot) {
		logger.Println(time.Now(), "phase:", phaseName(snap.Phase))
		if err := cfg.SaveTuningHistory(history.Entries()); err != nil {
			errorLog.Record(core.KindFlashIO, "persisting tuning history: "+err.Error(), sampler.NowMS())
		}
		if err := cfg.SaveProfiles(tasks.Profiles); err != nil {
			errorLog.Record(core.KindFlashIO, "persisting profiles: "+err.Error(), sampler.NowMS())
		}
	})
	go runNetworkTask(tasks, u, errorLog)

	logger.Start(time.Now())
	select {}
}

// historySink appends every untuned drop's learning entry to the in-memory
// ring; the Render task's periodic tick is what flushes the ring to flash,
// so persistence never blocks a drop in progress.
type historySink struct {
	history *tuner.History
}

func (h historySink) Record(e model.LearningEntry) { h.history.Record(e) }

func selectedProfileIndex(profiles [model.MaxProfiles]model.Profile) int {
	for i, p := range profiles {
		if p.Selected {
			return i
		}
	}
	return 0
}

// runNetworkTask is the Network task: it only submits requests to
// Control through tasks.Submit and serves the updater's REST adapter,
// never touching Machine/history state directly. errorLog is the same
// ring Machine.Run records into, so a rejection logged here and one
// logged inside Run both surface through restadapter's /errors route.
func runNetworkTask(tasks *control.Tasks, u *updater.Updater, errorLog *core.Log) {
	r := chi.NewRouter()
	restadapter.NewHandler(u, errorLog).Routes(r)

	r.Post("/drop", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			TargetMass float64 `json:"target_mass"`
		}
		if json.NewDecoder(req.Body).Decode(&body) != nil {
			return
		}
		if body.TargetMass <= 0 {
			rejectRequest(w, errorLog, "target mass must be > 0")
			return
		}
		tasks.Submit(control.Request{StartDrop: &body.TargetMass})
	})
	r.Post("/select-profile", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Index int `json:"index"`
		}
		if json.NewDecoder(req.Body).Decode(&body) == nil {
			tasks.Submit(control.Request{SelectIndex: &body.Index})
		}
	})
	r.Post("/abort", func(w http.ResponseWriter, req *http.Request) {
		tasks.Submit(control.Request{Abort: true})
	})
	r.Post("/tuning/start", func(w http.ResponseWriter, req *http.Request) {
		tasks.Submit(control.Request{StartTuning: true})
	})
	r.Post("/tuning/cancel", func(w http.ResponseWriter, req *http.Request) {
		tasks.Submit(control.Request{CancelTuning: true})
	})
	r.Post("/tuning/apply", func(w http.ResponseWriter, req *http.Request) {
		if tasks.Session != nil {
			g := tasks.Session.RecommendedGains()
			coarse := model.Gains{Kp: g.CoarseKp, Kd: g.CoarseKd}
			fine := model.Gains{Kp: g.FineKp, Kd: g.FineKd}
			if !model.GainsInBounds(coarse, model.CoarseGainMin, model.CoarseGainMax) ||
				!model.GainsInBounds(fine, model.FineGainMin, model.FineGainMax) {
				rejectRequest(w, errorLog, "recommended gains outside their coarse/fine bounds")
				return
			}
		}
		tasks.Submit(control.Request{ApplyTuning: true})
	})

	// The WiFi netdev bring-up (association, DHCP) is board-specific;
	// ListenAndServe assumes a netdev is already registered by board
	// init before main runs.
	http.ListenAndServe(":80", r)
}

// rejectRequest records a typed input-validation error and answers 400,
// rather than forwarding a request Control would have to silently drop.
func rejectRequest(w http.ResponseWriter, errorLog *core.Log, msg string) {
	errorLog.Record(core.KindInputValidation, msg, sampler.NowMS())
	http.Error(w, core.New(core.KindInputValidation, msg).Error(), http.StatusBadRequest)
}

func phaseName(p model.Phase) string {
	switch p {
	case model.PhaseWaitForZero:
		return "wait_for_zero"
	case model.PhaseDispense:
		return "dispense"
	case model.PhaseWaitForCupRemoval:
		return "wait_for_cup_removal"
	case model.PhaseWaitForCupReturn:
		return "wait_for_cup_return"
	case model.PhaseExit:
		return "exit"
	default:
		return "unknown"
	}
}
