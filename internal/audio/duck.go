package audio

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

var volumeRe = regexp.MustCompile(`(\d+)\s*%`)

// Ducker fades down every other PulseAudio playback stream while the
// appliance is listening or speaking, and restores them afterwards.
// Streams whose application.name matches one of selfNames are left alone.
type Ducker struct {
	selfNames []string
	factor    float64
	floor     int // lowest % a foreign stream is pushed to
	fadeTime  time.Duration

	mu       sync.Mutex
	active   bool
	restored map[int]int // sink-input id -> original volume %
}

func NewDucker(selfNames []string, factor float64, floor int, fadeTime time.Duration) *Ducker {
	if factor <= 0 || factor >= 1 {
		factor = 0.3
	}
	if floor < 0 {
		floor = 0
	}
	return &Ducker{
		selfNames: append([]string(nil), selfNames...),
		factor:    factor,
		floor:     floor,
		fadeTime:  fadeTime,
		restored:  make(map[int]int),
	}
}

// Duck lowers foreign streams to volume*factor (bounded below by floor).
// Calling it while already ducked is a no-op.
func (d *Ducker) Duck(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active {
		return nil
	}

	streams, err := listSinkInputs(ctx)
	if err != nil {
		return fmt.Errorf("list sink inputs: %w", err)
	}

	d.restored = make(map[int]int)
	for _, s := range streams {
		if d.isSelf(s.appName) {
			continue
		}
		target := int(math.Round(float64(s.volume) * d.factor))
		if target < d.floor {
			target = d.floor
		}
		d.restored[s.id] = s.volume
		if err := fadeSinkInput(ctx, s.id, s.volume, target, d.fadeTime); err != nil {
			return err
		}
	}
	d.active = true
	return nil
}

// Restore brings every ducked stream back to its original volume.
// Idempotent.
func (d *Ducker) Restore(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.active {
		return nil
	}

	streams, err := listSinkInputs(ctx)
	if err != nil {
		return fmt.Errorf("list sink inputs: %w", err)
	}
	for _, s := range streams {
		orig, ok := d.restored[s.id]
		if !ok {
			// stream appeared after the duck, leave it be
			continue
		}
		if err := fadeSinkInput(ctx, s.id, s.volume, orig, d.fadeTime); err != nil {
			return err
		}
	}
	d.restored = make(map[int]int)
	d.active = false
	return nil
}

func (d *Ducker) isSelf(appName string) bool {
	for _, n := range d.selfNames {
		if appName == n {
			return true
		}
	}
	return false
}

type sinkInput struct {
	id      int
	volume  int
	appName string
}

func listSinkInputs(ctx context.Context) ([]sinkInput, error) {
	out, err := exec.CommandContext(ctx, "pactl", "list", "sink-inputs").Output()
	if err != nil {
		return nil, fmt.Errorf("pactl list sink-inputs: %w", err)
	}

	var res []sinkInput
	blocks := strings.Split(string(out), "Sink Input #")
	for _, block := range blocks[1:] {
		nl := strings.IndexByte(block, '\n')
		if nl <= 0 {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(block[:nl]))
		if err != nil {
			continue
		}
		s := sinkInput{id: id}
		for _, line := range strings.Split(block[nl+1:], "\n") {
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, "Volume:") && s.volume == 0 {
				if m := volumeRe.FindStringSubmatch(line); len(m) >= 2 {
					s.volume, _ = strconv.Atoi(m[1])
				}
			}
			if strings.HasPrefix(line, "application.name =") && s.appName == "" {
				if parts := strings.SplitN(line, "\"", 3); len(parts) >= 2 {
					s.appName = parts[1]
				}
			}
		}
		if s.volume == 0 && s.appName == "" {
			continue
		}
		res = append(res, s)
	}
	return res, nil
}

// fadeSinkInput steps the volume of one sink-input from -> to over dur.
func fadeSinkInput(ctx context.Context, id, from, to int, dur time.Duration) error {
	const step = 10 * time.Millisecond
	steps := int(dur / step)
	if steps < 1 {
		steps = 1
	}
	for i := 1; i <= steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		frac := float64(i) / float64(steps)
		v := int(math.Round(float64(from) + float64(to-from)*frac))
		if err := setSinkInputVolume(ctx, id, v); err != nil {
			return fmt.Errorf("set volume id=%d: %w", id, err)
		}
		if i < steps {
			time.Sleep(step)
		}
	}
	return nil
}

func setSinkInputVolume(ctx context.Context, id, percent int) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 150 {
		percent = 150
	}
	arg := strconv.Itoa(percent) + "%"
	return exec.CommandContext(ctx, "pactl", "set-sink-input-volume", strconv.Itoa(id), arg).Run()
}
