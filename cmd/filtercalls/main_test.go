package main

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varpipe/varpipe-vcf/clean"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{
		inPath:    "-",
		outPath:   "-",
		tmpDir:    filepath.Join(t.TempDir(), "run"),
		jobs:      2,
		batchSize: 50,
		params: clean.Params{
			MinDP:    10,
			MinGQ:    20,
			MinAF:    0.15,
			MinDPHV:  20,
			MinAFHV:  0.85,
			MinDPHET: 20,
			MinAFHET: 0.25,
			MaxAFHET: 0.75,
		},
	}
}

const testHeader = "##fileformat=VCFv4.2\n" +
	"##source=unit\n" +
	"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\tS1\tS2\n"

func runFilter(t *testing.T, config *Config, input string) string {
	t.Helper()
	var out bytes.Buffer
	_, err := filterCalls(config, bufio.NewReader(strings.NewReader(input)), &out, "filtercalls -test")
	require.NoError(t, err)
	return out.String()
}

func TestSetupAndValidate(t *testing.T) {
	config := setup([]string{
		"-jobs", "4", "-tmpDir", "/tmp/x",
		"-minDP", "10", "-minGQ", "20", "-minAF", "0.15",
		"-minDPHV", "20", "-minAFHV", "0.85",
		"-minDPHET", "20", "-minAFHET", "0.25", "-maxAFHET", "0.75",
		"-keepHR",
	})

	require.NoError(t, config.validate())
	assert.Equal(t, 4, config.jobs)
	assert.True(t, config.keepHR)
	assert.Equal(t, 10, config.params.MinDP)
	assert.Equal(t, 0.75, config.params.MaxAFHET)

	config.jobs = 1
	assert.Error(t, config.validate(), "one worker cannot also be the ordered reader")
	config.jobs = 4

	config.params.MinAFHET = -1
	assert.Error(t, config.validate(), "thresholds have no defaults")
}

func TestFilterCallsScenarios(t *testing.T) {
	input := testHeader +
		// HET with AF 0.92: re-called HV
		"chr1\t1000\t.\tC\tT\t50\tPASS\t.\tGT:GQ:DP:AD\t0/1:30:25:2,23\t0/0:40:30:30,0\n" +
		// every call fails QC: record dropped
		"chr1\t2000\t.\tC\tT\t50\tPASS\t.\tGT:GQ:DP:AD\t0/1:30:5:2,3\t./.\n" +
		// only ALT #2 called: T dropped, indices renumbered
		"chr1\t3000\t.\tA\tT,G\t50\tPASS\t.\tGT:GQ:DP:AD\t0/2:40:30:15,0,15\t./.\n" +
		// HV at HET allele fraction: re-called HET
		"chr1\t4000\t.\tG\tC\t50\tPASS\t.\tGT:GQ:DP:AD\t1/1:40:30:21,9\t0/0:35:20:20,0\n"

	out := runFilter(t, testConfig(t), input)
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")

	require.Len(t, lines, 7, out)
	assert.Equal(t, "##fileformat=VCFv4.2", lines[0])
	assert.Equal(t, "##source=unit", lines[1])
	assert.Equal(t, "##filtercalls=filtercalls -test", lines[2])
	assert.True(t, strings.HasSuffix(lines[3], "\tS1\tS2"))

	assert.Equal(t, "chr1\t1000\t.\tC\tT\t50\tPASS\t.\tGT:AF:GQ:DP:AD\t1/1:0.92:30:25:2,23\t0/0:.:40:30:30,0", lines[4])
	assert.Equal(t, "chr1\t3000\t.\tA\tG\t50\tPASS\t.\tGT:AF:GQ:DP:AD\t0/1:0.50:40:30:15,15\t./.", lines[5])
	assert.Equal(t, "chr1\t4000\t.\tG\tC\t50\tPASS\t.\tGT:AF:GQ:DP:AD\t0/1:0.30:40:30:21,9\t0/0:.:35:20:20,0", lines[6])
}

func TestFilterCallsPhantomHR(t *testing.T) {
	input := testHeader +
		// non-variant block at 5000 claiming the indel's anchor base
		"chr1\t5000\t.\tA\t<NON_REF>\t.\tPASS\tEND=5002\tGT:GQ:DP:AD\t0/0:40:30:30,0\t0/0:35:25:25,0\n" +
		"chr1\t5000\t.\tATT\tA\t50\tPASS\t.\tGT:GQ:DP:AD\t0/1:40:30:15,15\t./.\n" +
		// block whose END runs exactly into the next record
		"chr1\t6000\t.\tA\t<NON_REF>\t.\tPASS\tEND=6005\tGT:GQ:DP:AD\t0/0:40:30:30,0\t0/0:35:25:25,0\n" +
		"chr1\t6005\t.\tC\tT\t50\tPASS\t.\tGT:GQ:DP:AD\t0/1:40:30:15,15\t./.\n"

	config := testConfig(t)
	config.keepHR = true
	out := runFilter(t, config, input)

	assert.NotContains(t, out, "END=5002", "phantom HR block must vanish")
	assert.Contains(t, out, "chr1\t5000\t.\tATT\tA\t")
	assert.Contains(t, out, "END=6004", "block END must back off the claimed base")
	assert.NotContains(t, out, "END=6005")
}

func TestFilterCallsPhantomHRSmallBatches(t *testing.T) {
	// The same-position pair must reach one merger even when every batch
	// holds a single line, and the output must not depend on batch size.
	input := testHeader +
		"chr1\t5000\t.\tA\t<NON_REF>\t.\tPASS\tEND=5002\tGT:GQ:DP:AD\t0/0:40:30:30,0\t0/0:35:25:25,0\n" +
		"chr1\t5000\t.\tATT\tA\t50\tPASS\t.\tGT:GQ:DP:AD\t0/1:40:30:15,15\t./.\n"

	small := testConfig(t)
	small.keepHR = true
	small.batchSize = 1
	outSmall := runFilter(t, small, input)

	assert.NotContains(t, outSmall, "END=5002", "phantom HR block must vanish at batchSize=1")
	assert.Contains(t, outSmall, "chr1\t5000\t.\tATT\tA\t")

	big := testConfig(t)
	big.keepHR = true
	outBig := runFilter(t, big, input)

	assert.Equal(t, outBig, outSmall)
}

func TestFilterCallsSampleSelection(t *testing.T) {
	samples := filepath.Join(t.TempDir(), "samples.txt")
	require.NoError(t, os.WriteFile(samples, []byte("S2\n"), 0o644))

	config := testConfig(t)
	config.samplesPath = samples

	input := testHeader +
		"chr1\t1000\t.\tC\tT\t50\tPASS\t.\tGT:GQ:DP:AD\t0/1:30:25:2,23\t0/1:40:30:16,14\n"

	out := runFilter(t, config, input)

	assert.Contains(t, out, "\tFORMAT\tS2\n")
	assert.NotContains(t, out, "\tS1")
	// only S2's column survives
	assert.Contains(t, out, "\tGT:AF:GQ:DP:AD\t0/1:0.47:40:30:16,14\n")
}

func TestFilterCallsWorkerCountInvariance(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(testHeader)
	for i := 0; i < 300; i++ {
		fmt.Fprintf(&sb, "chr1\t%d\t.\tC\tT\t50\tPASS\t.\tGT:GQ:DP:AD\t0/1:30:30:16,14\t0/0:40:30:30,0\n", 1000+i*10)
	}
	input := sb.String()

	c1 := testConfig(t)
	c1.batchSize = 17
	seq := runFilter(t, c1, input)

	c2 := testConfig(t)
	c2.jobs = 8
	c2.batchSize = 17
	par := runFilter(t, c2, input)

	assert.Equal(t, seq, par, "output must not depend on worker count")
	assert.Equal(t, 300+4, strings.Count(seq, "\n"))
}

func TestFilterCallsRejectsNonVCF(t *testing.T) {
	var out bytes.Buffer
	_, err := filterCalls(testConfig(t), bufio.NewReader(strings.NewReader("not a vcf\n")), &out, "x")
	assert.Error(t, err)
}

func TestFilterCallsStats(t *testing.T) {
	input := testHeader +
		"chr1\t1000\t.\tC\tT\t50\tPASS\t.\tGT:GQ:DP:AD\t0/1:30:25:2,23\t0/0:40:30:30,0\n" +
		"chr1\t2000\t.\tC\tT\t50\tPASS\t.\tGT:GQ:DP:AD\t0/1:30:5:2,3\t./.\n"

	var out bytes.Buffer
	run, err := filterCalls(testConfig(t), bufio.NewReader(strings.NewReader(input)), &out, "x")
	require.NoError(t, err)

	total := run.Total()
	assert.Equal(t, int64(1), total.FixedToHV)
	assert.Equal(t, int64(1), total.NoCalls)
	assert.Equal(t, int64(1), total.DroppedRecords)
}
