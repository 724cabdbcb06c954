package protocol

import (
	"bytes"
	"errors"
	"image/color"
	"testing"
)

func TestEncodePing(t *testing.T) {
	got := Encode(Ping{}, 0)
	// SOP1, SOP2 (answer + reset timeout), core, ping, seq 0, len 1, checksum ^(0x00+0x01+0x00+0x01)
	want := []byte{0xFF, 0xFF, 0x00, 0x01, 0x00, 0x01, 0xFD}
	if !bytes.Equal(got, want) {
		t.Errorf("Encode(Ping{}, 0) = % x, want % x", got, want)
	}
}

func TestEncodePingSequence(t *testing.T) {
	for seq := 0; seq <= 0xFF; seq++ {
		got := Encode(Ping{}, uint8(seq))
		want := []byte{0xFF, 0xFF, 0x00, 0x01, byte(seq), 0x01, ^byte(0x01 + seq + 0x01)}
		if !bytes.Equal(got, want) {
			t.Fatalf("Encode(Ping{}, %d) = % x, want % x", seq, got, want)
		}
	}
}

func TestEncodePingWithoutOptions(t *testing.T) {
	got := Encode(Ping{Flags: Flags{NoAnswer: true, NoResetTimeout: true}}, 7)
	want := []byte{0xFF, 0xFC, 0x00, 0x01, 0x07, 0x01, ^byte(0x01 + 0x07 + 0x01)}
	if !bytes.Equal(got, want) {
		t.Errorf("Encode(Ping without options, 7) = % x, want % x", got, want)
	}
}

func TestFlagsSOP2(t *testing.T) {
	tests := []struct {
		flags Flags
		want  byte
	}{
		{Flags{}, 0xFF},
		{Flags{NoAnswer: true}, 0xFE},
		{Flags{NoResetTimeout: true}, 0xFD},
		{Flags{NoAnswer: true, NoResetTimeout: true}, 0xFC},
	}
	for _, tt := range tests {
		if got := tt.flags.SOP2(); got != tt.want {
			t.Errorf("%+v.SOP2() = 0x%02x, want 0x%02x", tt.flags, got, tt.want)
		}
	}
}

func TestEncodeRoll(t *testing.T) {
	got := Encode(Roll{Speed: 0x3F, Heading: 270, State: MotionGo}, 0)
	want := []byte{0xFF, 0xFF, 0x02, 0x30, 0x00, 0x05, 0x3F, 0x01, 0x0E, 0x01, 0x79}
	if !bytes.Equal(got, want) {
		t.Errorf("Encode(Roll) = % x, want % x", got, want)
	}
}

func TestEncodeSetColor(t *testing.T) {
	got := Encode(SetColor{R: 0xFF, G: 0x80, B: 0x00}, 0)
	want := []byte{0xFF, 0xFF, 0x02, 0x20, 0x00, 0x05, 0xFF, 0x80, 0x00, 0x00, 0x59}
	if !bytes.Equal(got, want) {
		t.Errorf("Encode(SetColor) = % x, want % x", got, want)
	}

	persisted := Encode(SetColor{R: 1, G: 2, B: 3, Persist: true}, 0)
	if persisted[9] != 0x01 {
		t.Errorf("persist byte = 0x%02x, want 0x01", persisted[9])
	}
}

func TestEncodeSetHeadingWraps(t *testing.T) {
	got := Encode(SetHeading{Heading: 450}, 0)
	want := []byte{0xFF, 0xFF, 0x02, 0x01, 0x00, 0x03, 0x00, 0x5A, 0x9F}
	if !bytes.Equal(got, want) {
		t.Errorf("Encode(SetHeading{450}) = % x, want % x", got, want)
	}
}

func TestEncodeSetBackBrightness(t *testing.T) {
	got := Encode(SetBackBrightness{Level: 0xFF}, 1)
	want := []byte{0xFF, 0xFF, 0x02, 0x21, 0x01, 0x02, 0xFF, 0xDA}
	if !bytes.Equal(got, want) {
		t.Errorf("Encode(SetBackBrightness) = % x, want % x", got, want)
	}
}

func TestHeadingModuloLaw(t *testing.T) {
	for h := 0; h < 360; h++ {
		base := SetHeading{Heading: uint16(h)}.Payload()
		baseRoll := Roll{Speed: 10, Heading: uint16(h)}.Payload()
		for k := 1; h+360*k <= 0xFFFF; k++ {
			wrapped := uint16(h + 360*k)
			if got := (SetHeading{Heading: wrapped}).Payload(); !bytes.Equal(got, base) {
				t.Fatalf("SetHeading(%d) payload = % x, want % x", wrapped, got, base)
			}
			if got := (Roll{Speed: 10, Heading: wrapped}).Payload(); !bytes.Equal(got, baseRoll) {
				t.Fatalf("Roll(heading %d) payload = % x, want % x", wrapped, got, baseRoll)
			}
		}
	}
}

func TestEncodedFramesVerify(t *testing.T) {
	var cmds []Command
	cmds = append(cmds, Ping{}, Ping{Flags: Flags{NoAnswer: true}})
	for _, h := range []uint16{0, 1, 90, 359, 360, 721, 0xFFFF} {
		cmds = append(cmds, SetHeading{Heading: h})
		for _, s := range []uint8{0, 1, 0x7F, 0xFF} {
			cmds = append(cmds, Roll{Speed: s, Heading: h, State: MotionGo}, Roll{Speed: s, Heading: h})
		}
	}
	for _, v := range []uint8{0, 0x10, 0xFF} {
		cmds = append(cmds,
			SetBackBrightness{Level: v},
			SetColor{R: v, G: ^v, B: v / 2},
			SetColor{R: v, G: v, B: v, Persist: true},
		)
	}

	for _, cmd := range cmds {
		for _, seq := range []uint8{0, 1, 0xFE, 0xFF} {
			frame := Encode(cmd, seq)
			if err := VerifyChecksum(frame); err != nil {
				t.Fatalf("VerifyChecksum(Encode(%#v, %d)) error = %v", cmd, seq, err)
			}
			last := len(frame) - 1
			var sum byte
			for _, b := range frame[2:last] {
				sum += b
			}
			if frame[last] != ^sum {
				t.Fatalf("checksum of %#v = 0x%02x, want 0x%02x", cmd, frame[last], ^sum)
			}
			if int(frame[5]) != len(cmd.Payload())+1 {
				t.Fatalf("length byte of %#v = %d, want %d", cmd, frame[5], len(cmd.Payload())+1)
			}
		}
	}
}

func TestVerifyChecksumRejects(t *testing.T) {
	frame := Encode(Roll{Speed: 1, Heading: 2, State: MotionGo}, 0)
	frame[len(frame)-1] ^= 0x01
	if err := VerifyChecksum(frame); !errors.Is(err, ErrBadChecksum) {
		t.Errorf("VerifyChecksum(corrupted) error = %v, want ErrBadChecksum", err)
	}

	if err := VerifyChecksum([]byte{0xFF, 0xFF}); !errors.Is(err, ErrShortFrame) {
		t.Errorf("VerifyChecksum(short) error = %v, want ErrShortFrame", err)
	}

	truncated := Encode(SetColor{R: 1}, 0)
	truncated = truncated[:len(truncated)-2]
	if err := VerifyChecksum(truncated); err == nil {
		t.Error("VerifyChecksum(truncated) should fail on length byte")
	}
}

func TestPingAcknowledgement(t *testing.T) {
	if got, want := PingAcknowledgement(0), []byte{0xFF, 0xFF, 0x00, 0x00, 0x01, 0xFE}; !bytes.Equal(got, want) {
		t.Errorf("PingAcknowledgement(0) = % x, want % x", got, want)
	}
	if got, want := PingAcknowledgement(3), []byte{0xFF, 0xFF, 0x00, 0x03, 0x01, 0xFB}; !bytes.Equal(got, want) {
		t.Errorf("PingAcknowledgement(3) = % x, want % x", got, want)
	}
}

func TestColorFrom(t *testing.T) {
	got := ColorFrom(color.RGBA{R: 0x33, G: 0x99, B: 0xF4, A: 0xFF}, true)
	want := SetColor{R: 0x33, G: 0x99, B: 0xF4, Persist: true}
	if got != want {
		t.Errorf("ColorFrom() = %+v, want %+v", got, want)
	}

	white := ColorFrom(color.White, false)
	if white.R != 0xFF || white.G != 0xFF || white.B != 0xFF {
		t.Errorf("ColorFrom(White) = %+v, want all 0xFF", white)
	}
}
