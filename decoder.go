package avreel

// decoderState is the bookkeeping shared by every stream's decode loop:
// which serial it's currently decoding under, and whether it has observed
// end-of-stream for that serial. Per .
type decoderState struct {
	serial   int32
	finished int32 // matches serial once EOF has been observed for it; -1 otherwise
}

func (d *decoderState) isFinished() bool { return d.finished == d.serial }

// videoDecoder turns queued video packets into pictures in the video
// frameQueue.
type videoDecoder struct {
	decoderState
	pq     *packetQueue
	fq     *frameQueue[videoFrame]
	stream videoStreamSource
	sync   *syncPolicy

	frameDuration float64
	nextPos       int64
}

func newVideoDecoder(pq *packetQueue, fq *frameQueue[videoFrame], stream videoStreamSource, sync *syncPolicy, frameRateNum, frameRateDen int) *videoDecoder {
	fd := 0.0
	if frameRateNum > 0 {
		fd = float64(frameRateDen) / float64(frameRateNum)
	}
	return &videoDecoder{
		decoderState:  decoderState{finished: -1},
		pq:            pq,
		fq:            fq,
		stream:        stream,
		sync:          sync,
		frameDuration: fd,
	}
}

// run is the video decode loop. It exits only when the packetQueue is
// aborted; callers run it in its own goroutine.
func (d *videoDecoder) run() {
	for {
		entry, ok, err := d.pq.get(true)
		if err != nil {
			return // aborted
		}
		if !ok {
			continue
		}

		switch entry.kind {
		case packetFlush:
			d.serial = entry.serial
			d.finished = -1
			continue
		case packetNull:
			d.finished = entry.serial
			continue
		case packetData:
			if entry.serial != d.serial {
				continue // stale packet from a superseded serial, drop
			}
			d.handleFrame(entry)
		}
	}
}

func (d *videoDecoder) handleFrame(entry packetEntry) {
	unit, ok := entry.payload.(videoUnit)
	if !ok {
		return
	}
	presOffset, err := unit.presentationOffset()
	if err != nil {
		warnf("video frame presentation offset error: %v", err)
		return
	}
	pts := presOffset.Seconds()

	_, count, _, _ := d.pq.counters()
	if d.sync.shouldDropEarly(pts, 0, d.serial, d.sync.videoClock.currentSerial(), count > 0) {
		debugf("dropping early video frame at pts=%.3f", pts)
		return
	}

	slot, ok := d.fq.peekWritable()
	if !ok {
		return // aborted while waiting for room
	}
	d.nextPos++
	slot.meta = frameMeta{pts: pts, duration: d.frameDuration, position: d.nextPos, serial: entry.serial}
	if slot.value.image == nil {
		slot.value.image = newVideoImage(d.stream.Width(), d.stream.Height())
	}
	writeVideoImage(slot.value.image, unit)
	slot.value.width, slot.value.height = slot.value.image.Bounds().Dx(), slot.value.image.Bounds().Dy()
	d.fq.push()
}

// audioDecoder turns queued audio packets into PCM blocks in the audio
// frameQueue. PTS projection: if a frame arrives without its own
// timestamp, nextPts (accumulated from prior frames) is used instead, per
// step 1.
type audioDecoder struct {
	decoderState
	pq     *packetQueue
	fq     *frameQueue[audioFrame]
	stream audioStreamSource

	nextPts    float64
	startPts   float64
	sampleRate int
	channels   int
}

func newAudioDecoder(pq *packetQueue, fq *frameQueue[audioFrame], stream audioStreamSource, sampleRate, channels int) *audioDecoder {
	return &audioDecoder{
		decoderState: decoderState{finished: -1},
		pq:           pq,
		fq:           fq,
		stream:       stream,
		sampleRate:   sampleRate,
		channels:     channels,
	}
}

func (d *audioDecoder) run() {
	for {
		entry, ok, err := d.pq.get(true)
		if err != nil {
			return
		}
		if !ok {
			continue
		}

		switch entry.kind {
		case packetFlush:
			d.serial = entry.serial
			d.finished = -1
			d.nextPts = d.startPts
			continue
		case packetNull:
			d.finished = entry.serial
			continue
		case packetData:
			if entry.serial != d.serial {
				continue
			}
			d.handleFrame(entry)
		}
	}
}

func (d *audioDecoder) handleFrame(entry packetEntry) {
	unit, ok := entry.payload.(audioUnit)
	if !ok {
		return
	}
	samples := unit.samples()
	bytesPerSample := 2 * d.channels
	if bytesPerSample == 0 {
		bytesPerSample = 2
	}
	nbSamples := len(samples) / bytesPerSample

	var pts float64
	if presOffset, err := unit.presentationOffset(); err == nil && presOffset >= 0 {
		pts = presOffset.Seconds()
	} else {
		pts = d.nextPts
	}
	duration := float64(nbSamples) / float64(max(d.sampleRate, 1))
	d.nextPts = pts + duration

	slot, ok := d.fq.peekWritable()
	if !ok {
		return
	}
	slot.meta = frameMeta{pts: pts, duration: duration, serial: entry.serial}
	slot.value.samples = append(slot.value.samples[:0], samples...)
	slot.value.sampleRate = d.sampleRate
	slot.value.channels = d.channels
	slot.value.nbSamples = nbSamples
	d.fq.push()
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// subtitleDecoder mirrors the audio/video decode protocol for subtitle
// packets: it tracks Flush and Null sentinels and drops stale data
// packets. A data packet of the current serial is accepted and produces no
// subtitle frame.
//
// No source in this package produces subtitle packets (reisen exposes no
// subtitle stream), so in practice this decoder's packetQueue only ever
// receives Flush sentinels: the initial one from start and one per seek.
// No test in this package drives this decoder.
type subtitleDecoder struct {
	decoderState
	pq *packetQueue
	fq *frameQueue[subtitleFrame]
}

func newSubtitleDecoder(pq *packetQueue, fq *frameQueue[subtitleFrame]) *subtitleDecoder {
	return &subtitleDecoder{decoderState: decoderState{finished: -1}, pq: pq, fq: fq}
}

func (d *subtitleDecoder) run() {
	for {
		entry, ok, err := d.pq.get(true)
		if err != nil {
			return
		}
		if !ok {
			continue
		}
		switch entry.kind {
		case packetFlush:
			d.serial = entry.serial
			d.finished = -1
		case packetNull:
			d.finished = entry.serial
		case packetData:
			if entry.serial != d.serial {
				continue
			}
			// No concrete subtitle unit type is produced by the current
			// mediaSource implementations; left as a protocol no-op.
		}
	}
}
