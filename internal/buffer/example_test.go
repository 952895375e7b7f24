package buffer_test

import (
	"context"
	"fmt"
	"os"

	"github.com/jittakal/kafetl/internal/buffer"
)

func Example_spillBuffer() {
	dir, _ := os.MkdirTemp("", "spill-example")
	defer os.RemoveAll(dir)

	// Three 10-byte frames fill most of a 50-byte region; the fourth spills it to disk.
	buf := buffer.New(buffer.Config{
		Name:           "example",
		DataRegionSize: 50,
		MaxRecordSize:  16,
		SpillDirectory: dir,
	}, nil, nil)
	if err := buf.Init(); err != nil {
		fmt.Println("init:", err)
		return
	}
	defer buf.Close()

	for i := 0; i < 4; i++ {
		_ = buf.Write([]byte(fmt.Sprintf("record-%03d", i)))
	}
	_ = buf.SetEOF()

	stats := buf.Stats()
	fmt.Printf("buffered=%d spills=%d file=%v\n", stats.BufferedRecords, stats.Spills, stats.HasFile)

	ctx := context.Background()
	for {
		frame, ok, err := buf.Read(ctx, nil)
		if err != nil {
			fmt.Println("read:", err)
			return
		}
		if !ok {
			break
		}
		fmt.Println(string(frame))
	}
	fmt.Printf("closed=%v file=%v\n", buf.IsClosed(), buf.HasFile())

	// Output:
	// buffered=4 spills=2 file=true
	// record-000
	// record-001
	// record-002
	// record-003
	// closed=true file=false
}
