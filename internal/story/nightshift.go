package story

import (
	"fmt"
	"math/rand/v2"
)

// NightShift is the statically-authored work story shipped with the
// service: a warehouse security shift that may or may not stay quiet.
// Reward literals are hand-tuned content data; the balance metadata is
// advisory only.
func NightShift() *Story {
	nodes := []*Node{
		NewIntro("intro",
			TextFn(func() string {
				trucks := 3 + rand.IntN(9)
				return fmt.Sprintf(
					"Clock-in at the Meridian Storage depot. %d trucks on the overnight manifest, "+
						"one flickering floodlight, and a thermos of bad coffee. Somewhere past aisle "+
						"forty, something just fell over.", trucks)
			}),
			"decision_1"),

		NewDecision("decision_1",
			Text("The radio crackles. Dispatch wants a status report, but that noise came from the far end of the depot."),
			Choice{
				Label:          "Do the rounds",
				Description:    "Stick to the patrol route and log everything by the book.",
				BaseReward:     50,
				RiskMultiplier: 0.8,
				Next:           "outcome_1x",
			},
			Choice{
				Label:          "Investigate the noise",
				Description:    "Head straight for aisle forty with your flashlight.",
				BaseReward:     120,
				RiskMultiplier: 1.4,
				Next:           "outcome_1y",
			}),

		func() *Node {
			n := NewOutcome("outcome_1x",
				Text("You sweep the loading bays one by one, checking seals and signing the sheet."),
				70, "decision_2a", "decision_2b")
			n.Outcome.Coins = CoinsFn(func() int { return 10 + rand.IntN(21) })
			return n
		}(),

		NewOutcome("outcome_1y",
			Text("You cut through the dark aisles toward the sound, boots loud on the concrete."),
			70, "decision_2c", "decision_2d"),

		// Round clean: everything checks out, but bay nine's door is ajar.
		NewDecision("decision_2a",
			Text("The route is clean and ahead of schedule — except bay nine, where the roll-up door sits a hand's width open."),
			Choice{
				Label:          "Check bay nine",
				Description:    "Lift the door and see what's behind it.",
				BaseReward:     150,
				RiskMultiplier: 1.2,
				Next:           "outcome_2ax",
			},
			Choice{
				Label:          "Seal it and move on",
				Description:    "Padlock the door, note it in the log, finish the shift.",
				BaseReward:     80,
				RiskMultiplier: 0.7,
				Next:           "end_quiet",
			}),

		// Round went sideways: a seal is broken and the log doesn't add up.
		NewDecision("decision_2b",
			Text("Halfway through, a container seal is snapped clean off and the manifest says it was fine an hour ago."),
			Choice{
				Label:          "Report it now",
				Description:    "Call dispatch and stand your ground until someone shows.",
				BaseReward:     100,
				RiskMultiplier: 1.0,
				Next:           "outcome_2bx",
			},
			Choice{
				Label:          "Pretend you saw nothing",
				Description:    "Walk the rest of the route and keep your head down.",
				BaseReward:     0,
				RiskMultiplier: 0.9,
				Next:           "end_slink",
			}),

		// The noise was real: two silhouettes around a pried-open crate.
		NewDecision("decision_2c",
			Text("Aisle forty. Two silhouettes crouch over a pried-open crate, a bolt cutter between them."),
			Choice{
				Label:          "Confront them",
				Description:    "Light them up and announce security, loud.",
				BaseReward:     250,
				RiskMultiplier: 1.5,
				Next:           "outcome_2cx",
			},
			Choice{
				Label:          "Shadow them quietly",
				Description:    "Hang back, film everything, and wait for the plates on their van.",
				BaseReward:     180,
				RiskMultiplier: 1.1,
				Next:           "outcome_2cy",
			}),

		// False alarm, mostly: a shelf gave way on its own.
		NewDecision("decision_2d",
			Text("A shelf upright has buckled and dumped a pallet of fittings across the aisle. No intruders, just a mess."),
			Choice{
				Label:          "Restack it yourself",
				Description:    "Two hours of lifting, but the morning crew owes you one.",
				BaseReward:     120,
				RiskMultiplier: 1.0,
				Next:           "outcome_2dx",
			},
			Choice{
				Label:          "Tape it off and log it",
				Description:    "Not your pallet, not your hernia.",
				BaseReward:     40,
				RiskMultiplier: 0.7,
				Next:           "end_walkaway",
			}),

		NewOutcome("outcome_2ax",
			Text("You grip the handle and haul the bay door up."),
			65, "end_hero", "end_tripped"),
		NewOutcome("outcome_2bx",
			Text("Dispatch patches you through to the shift supervisor, who sounds very awake all of a sudden."),
			75, "end_recover", "end_writeup"),
		NewOutcome("outcome_2cx",
			Text("Your flashlight beam pins them mid-reach. One of them drops the bolt cutter."),
			55, "end_bust", "end_hospital"),
		NewOutcome("outcome_2cy",
			Text("You trail them through the racks, phone recording, breath held."),
			70, "end_deal", "end_writeup"),
		NewOutcome("outcome_2dx",
			Text("You start hauling boxes back onto the surviving shelves."),
			80, "end_overtime", "end_tripped"),

		NewTerminal("end_quiet",
			Text("The shift ends without incident. Bay nine stays sealed, your log is immaculate, and the day guard finds a bonus envelope with your name on it."),
			Coins(120), true, 1.0),
		NewTerminal("end_slink",
			Text("You said nothing. The missing cargo surfaces on Monday, the cameras show you walking past the broken seal, and your pay gets docked."),
			Coins(-60), false, 0.8),
		NewTerminal("end_walkaway",
			Text("Hazard tape, one photo, one log line. Nobody thanks you, but nobody yells either. A small, honest night's pay."),
			Coins(40), true, 0.9),
		NewTerminal("end_hero",
			Text("Behind the door: the depot's missing generator, and the man who rolled it there. Police take him, the owner takes your hand, and the reward is substantial."),
			Coins(450), true, 1.6),
		NewTerminal("end_tripped",
			Text("The door jams, the stack behind it doesn't. You dig yourself out from under a landslide of boxes and limp to the office to file an incident report — on yourself."),
			Coins(-150), false, 0.8),
		NewTerminal("end_recover",
			Text("The supervisor arrives with two officers. The cargo is recovered from a van parked two streets over, and your name goes on the recovery report."),
			Coins(180), true, 1.2),
		NewTerminal("end_writeup",
			Text("Somehow the paperwork ends up blaming shift security. You spend sunrise writing statements and the deduction stings."),
			Coins(-120), false, 0.8),
		NewTerminal("end_bust",
			Text("They bolt, straight into the arms of the patrol car your call staged at the gate. Two arrests, full recovery, and the biggest bonus the depot pays."),
			Coins(600), true, 2.0),
		NewTerminal("end_hospital",
			Text("The bigger one doesn't drop the bolt cutter. You wake up in a hospital bed with a concussion and a bill."),
			Coins(-260), false, 0.8),
		NewTerminal("end_deal",
			Text("Plates, faces, and the whole hand-off on video. The footage closes a string of depot thefts and the insurers pay a finder's fee."),
			Coins(320), true, 1.4),
		NewTerminal("end_overtime",
			Text("By dawn the aisle looks better than before the collapse. The morning supervisor signs off double hours without blinking."),
			Coins(240), true, 1.2),
	}

	s := New("night-shift", "The Night Shift", "🌙", "intro", nodes)
	s.Meta = BalanceMeta{PathCount: 14, AvgNet: 140, MinNet: -260, MaxNet: 630}
	return s
}
